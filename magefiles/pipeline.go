//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Index ingests extraction files into the corpus, scores abstracts and tags
// false positives.
func Index() error {
	mg.Deps(Build, Init)
	for _, stage := range []string{"ingest", "score", "tag"} {
		if err := sh.RunV(binPath, stage); err != nil {
			return err
		}
	}
	return nil
}

// Batch runs one discovery batch over the indexed corpus.
func Batch() error {
	mg.Deps(Index)
	return sh.RunV(binPath, "run")
}
