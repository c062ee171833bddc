package main

import (
	"context"
	"fmt"

	"dagger/keepsake/internal/dagger"
)

const golangciLintVersion = "v2.8.0"

// lintOpts returns the common GolangcilintOpts used by both CheckLint and FixLint.
// It layers golangci-lint on top of goContainer() so the sqlite dev headers,
// CGO, and Go caches are already in place.
func (k *Keepsake) lintOpts() dagger.GolangcilintOpts {
	base := k.goContainer().
		WithExec([]string{
			"go",
			"install",
			fmt.Sprintf("github.com/golangci/golangci-lint/v2/cmd/golangci-lint@%s", golangciLintVersion),
		})

	return dagger.GolangcilintOpts{
		BaseCtr: base,
		Config:  k.Source.File(".golangci.yml"),
	}
}

// CheckLint runs golangci-lint against the keepsake source code without applying fixes.
func (k *Keepsake) CheckLint(ctx context.Context) (string, error) {
	return dag.Golangcilint(k.Source, k.lintOpts()).Check(ctx)
}

// FixLint runs golangci-lint against the keepsake source code with --fix, applying
// automatic fixes where possible, and returns the modified source directory.
func (k *Keepsake) FixLint(ctx context.Context) *dagger.Directory {
	return dag.Golangcilint(k.Source, k.lintOpts()).Lint()
}
