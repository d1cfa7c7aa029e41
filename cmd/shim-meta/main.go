// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command shim-meta inspects and edits the recordings metadata
// database from an interactive prompt.
//
// Usage: shim-meta [OPTIONS]
//
// Example:
//
//	$> shim-meta -db shimmeta
//	shim-meta> patient D0:2B:46:01:02:03
//	patient: "patient-042"
//	shim-meta> map D0:2B:46:01:02:03 patient-051
//	shim-meta> recordings D0:2B:46:01:02:03
//	rec-002: patient="patient-042" samples=512 t=[2e+09, 2.000001e+09]
//	shim-meta> quit
package main // import "github.com/wearlog/shim/cmd/shim-meta"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/wearlog/shim/metadb"
)

func main() {
	log.SetPrefix("shim-meta: ")
	log.SetFlags(0)

	dbname := flag.String("db", "shimmeta", "name of the metadata database")

	flag.Parse()

	db, err := metadb.Open(*dbname)
	if err != nil {
		log.Fatalf("could not open metadata db %q: %+v", *dbname, err)
	}
	defer db.Close()

	repl(db)
}

func repl(db *metadb.DB) {
	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	for {
		line, err := term.Prompt("shim-meta> ")
		switch err {
		case nil:
			// ok
		case io.EOF, liner.ErrPromptAborted:
			fmt.Println()
			return
		default:
			log.Printf("could not read line: %+v", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		if line == "quit" || line == "exit" {
			return
		}

		err = execCmd(os.Stdout, db, line)
		if err != nil {
			log.Printf("%+v", err)
		}
	}
}

func execCmd(w io.Writer, db *metadb.DB, line string) error {
	ctx := context.Background()
	args := strings.Fields(line)

	switch args[0] {
	case "help":
		fmt.Fprintf(w, `Commands:
  patient MAC             display the patient mapped to a device
  map MAC PATIENT         map a device to a patient
  recordings MAC          list the recordings of a device
  help                    display this help
  quit                    quit
`)
		return nil

	case "patient":
		if len(args) != 2 {
			return fmt.Errorf("usage: patient MAC")
		}
		patient, err := db.PatientForDevice(ctx, args[1])
		if err != nil {
			return fmt.Errorf("could not get patient for %q: %w", args[1], err)
		}
		fmt.Fprintf(w, "patient: %q\n", patient)
		return nil

	case "map":
		if len(args) != 3 {
			return fmt.Errorf("usage: map MAC PATIENT")
		}
		err := db.SetPatientForDevice(ctx, args[1], args[2])
		if err != nil {
			return fmt.Errorf("could not map %q to %q: %w", args[1], args[2], err)
		}
		return nil

	case "recordings":
		if len(args) != 2 {
			return fmt.Errorf("usage: recordings MAC")
		}
		recs, err := db.Recordings(ctx, args[1])
		if err != nil {
			return fmt.Errorf("could not list recordings of %q: %w", args[1], err)
		}
		for _, rec := range recs {
			fmt.Fprintf(w, "%s: patient=%q samples=%d t=[%v, %v]\n",
				rec.ID, rec.Patient, rec.Samples, rec.Start, rec.End,
			)
		}
		return nil
	}

	return fmt.Errorf("unknown command %q (try \"help\")", args[0])
}
