package ports

import "context"

// BuilderService fetches game sources and builds container images from them.
type BuilderService interface {
	// Clone performs a shallow clone of repoURL into dest.
	Clone(ctx context.Context, repoURL string, dest string) error
	// BuildImage builds the Dockerfile in contextDir and tags it imageName.
	// It returns the tag that was built.
	BuildImage(ctx context.Context, contextDir string, imageName string) (string, error)
}
