package builder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/rs/zerolog"
)

type fakeImageBuilder struct {
	output string
	opts   types.ImageBuildOptions
}

func (f *fakeImageBuilder) ImageBuild(_ context.Context, buildContext io.Reader, opts types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	f.opts = opts
	_, _ = io.Copy(io.Discard, buildContext)
	return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(f.output))}, nil
}

func writeDockerfile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestBuildImageTagsImage(t *testing.T) {
	fake := &fakeImageBuilder{output: `{"stream":"Step 1/1 : FROM scratch\n"}` + "\n" + `{"stream":"Successfully built abc\n"}`}
	a := &Adapter{cli: fake, logger: zerolog.Nop()}

	tag, err := a.BuildImage(context.Background(), writeDockerfile(t), "gamehost/a:latest")
	if err != nil {
		t.Fatalf("BuildImage: %v", err)
	}
	if tag != "gamehost/a:latest" {
		t.Fatalf("tag = %q", tag)
	}
	if len(fake.opts.Tags) != 1 || fake.opts.Tags[0] != "gamehost/a:latest" || !fake.opts.Remove {
		t.Fatalf("build options = %+v", fake.opts)
	}
}

func TestBuildImageSurfacesStreamError(t *testing.T) {
	fake := &fakeImageBuilder{output: `{"error":"failed to solve: dockerfile parse error"}`}
	a := &Adapter{cli: fake, logger: zerolog.Nop()}

	_, err := a.BuildImage(context.Background(), writeDockerfile(t), "gamehost/a:latest")
	if err == nil || !strings.Contains(err.Error(), "dockerfile parse error") {
		t.Fatalf("BuildImage() err = %v", err)
	}
}
