// Command tachyon-repair scans a Tachyon root directory for sealed data
// files the catalog does not know about and deletes them. This can only
// happen if a previous process crashed between writing a file and
// registering it in the catalog; Open runs the same pass automatically, so
// this binary exists for operators who want to run it (or inspect what it
// would find) without opening the engine from an application.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/tachyondb/tachyon/indexer"
	"github.com/tachyondb/tachyon/writer"
)

var (
	root = flag.String("root", "",
		"path to the Tachyon root directory to repair")

	busyTimeoutMS = flag.Int("sqlite-busy-timeout-ms", 5000,
		"SQLite busy timeout, in milliseconds, for the catalog connection")
)

func main() {
	flag.Parse()

	if *root == "" {
		log.Fatal("-root is required")
	}

	ix, err := indexer.Open(*root+"/indexer.sqlite", *busyTimeoutMS)
	if err != nil {
		log.Fatalf("open catalog: %v", err)
	}
	defer ix.Close()

	w := writer.New(*root, ix)

	removed, err := w.Repair(context.Background())
	if err != nil {
		log.Fatalf("repair: %v", err)
	}

	log.Printf("removed %d orphaned file(s)", removed)
}
