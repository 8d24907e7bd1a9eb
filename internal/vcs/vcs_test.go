package vcs

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"snapdiff/internal/artifact"
	"snapdiff/internal/identity"
	"snapdiff/internal/imagebuf"
)

func requireGit(t *testing.T) Git {
	t.Helper()
	g := Git{Dir: t.TempDir()}
	if !g.Available() {
		t.Skip("git not installed")
	}
	return g
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	data, err := imagebuf.Filled(4, 4, c).EncodePNG()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func TestGitReadsCommittedNotWorkingTree(t *testing.T) {
	g := requireGit(t)
	git(t, g.Dir, "init", "-q")

	path := filepath.Join(g.Dir, "shots", "home.png")
	committed := pngBytes(t, color.White)
	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, committed, 0644)
	git(t, g.Dir, "add", ".")
	git(t, g.Dir, "commit", "-q", "-m", "baseline")

	os.WriteFile(path, pngBytes(t, color.Black), 0644)

	data, ok, err := g.ReadCommitted(context.Background(), "shots/home.png")
	if err != nil || !ok {
		t.Fatalf("expected committed file, ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(data, committed) {
		t.Fatalf("expected committed bytes, got working tree content")
	}
}

func TestGitUntrackedIsAbsent(t *testing.T) {
	g := requireGit(t)
	git(t, g.Dir, "init", "-q")
	os.WriteFile(filepath.Join(g.Dir, "seed.txt"), []byte("x"), 0644)
	git(t, g.Dir, "add", ".")
	git(t, g.Dir, "commit", "-q", "-m", "seed")
	os.WriteFile(filepath.Join(g.Dir, "new.png"), pngBytes(t, color.White), 0644)

	for _, p := range []string{"new.png", "never/existed.png"} {
		_, ok, err := g.ReadCommitted(context.Background(), p)
		if err != nil || ok {
			t.Fatalf("%s: expected absent, ok=%v err=%v", p, ok, err)
		}
	}
}

func TestGitNoCommitsIsAbsent(t *testing.T) {
	g := requireGit(t)
	git(t, g.Dir, "init", "-q")

	_, ok, err := g.ReadCommitted(context.Background(), "shots/home.png")
	if err != nil || ok {
		t.Fatalf("expected absent in empty repository, ok=%v err=%v", ok, err)
	}
}

func TestGitMissingBinaryIsAnError(t *testing.T) {
	g := Git{Dir: t.TempDir(), Binary: filepath.Join(t.TempDir(), "no-such-git")}
	if _, _, err := g.ReadCommitted(context.Background(), "a.png"); err == nil {
		t.Fatalf("expected error when git cannot run")
	}
}

type mapRepo struct {
	files map[string][]byte
	err   error
	asked []string
}

func (m *mapRepo) ReadCommitted(ctx context.Context, path string) ([]byte, bool, error) {
	m.asked = append(m.asked, path)
	if m.err != nil {
		return nil, false, m.err
	}
	data, ok := m.files[path]
	return data, ok, nil
}

func TestResolverReturnsNilWithoutBaseline(t *testing.T) {
	r := Resolver{Repo: &mapRepo{}, Layout: artifact.Layout{Area: "shots"}}
	b, err := r.Resolve(context.Background(), identity.Identity{Group: "login", Seq: 1, Label: "form"})
	if err != nil || b != nil {
		t.Fatalf("expected no baseline, got %v err=%v", b, err)
	}
}

func TestResolverDecodesCommittedBytes(t *testing.T) {
	data := pngBytes(t, color.RGBA{1, 2, 3, 255})
	repo := &mapRepo{files: map[string][]byte{"shots/login/01_form.png": data}}
	r := Resolver{Repo: repo, Layout: artifact.Layout{Root: t.TempDir(), Area: "shots"}}

	b, err := r.Resolve(context.Background(), identity.Identity{Group: "login", Seq: 1, Label: "form"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if b == nil || b.Buffer.At(0, 0) != (color.RGBA{1, 2, 3, 255}) {
		t.Fatalf("unexpected baseline %+v", b)
	}
	if !bytes.Equal(b.Data, data) {
		t.Fatalf("expected raw committed bytes kept")
	}
	if len(repo.asked) != 1 || repo.asked[0] != "shots/login/01_form.png" {
		t.Fatalf("unexpected lookups %v", repo.asked)
	}
}

func TestResolverCorruptBaselineIsHardFailure(t *testing.T) {
	repo := &mapRepo{files: map[string][]byte{"shots/x.png": []byte("garbage")}}
	r := Resolver{Repo: repo, Layout: artifact.Layout{Area: "shots"}}

	b, err := r.Resolve(context.Background(), identity.Identity{Label: "x"})
	if !errors.Is(err, ErrBaselineDecode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if b != nil {
		t.Fatalf("corrupt baseline must not be returned")
	}
}

func TestResolverPropagatesRepositoryErrors(t *testing.T) {
	boom := errors.New("git exploded")
	r := Resolver{Repo: &mapRepo{err: boom}, Layout: artifact.Layout{Area: "shots"}}
	if _, err := r.Resolve(context.Background(), identity.Identity{Label: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected repository error, got %v", err)
	}
}
