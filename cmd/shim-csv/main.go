// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// shim-csv decodes an SD-log data file and converts it to CSV.
//
// Usage: shim-csv [OPTIONS] FILE
//
// The output table holds one row per sample: the reconstructed
// timestamp, the raw tick counter, the raw value of every channel and,
// unless -raw is given, the calibrated output of every inertial sensor
// present in the recording.
//
// Example:
//
//	$> shim-csv -o out.csv ./testdata/000-data.bin
//	$> shim-csv -raw ./testdata/000-data.bin
package main // import "github.com/wearlog/shim/cmd/shim-csv"

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"go-hep.org/x/hep/csvutil"

	"github.com/wearlog/shim/calib"
	"github.com/wearlog/shim/record"
	"github.com/wearlog/shim/sdlog"
)

func main() {
	log.SetPrefix("shim-csv: ")
	log.SetFlags(0)

	var (
		oname = flag.String("o", "", "path to output CSV file (default: input with a .csv extension)")
		raw   = flag.Bool("raw", false, "only write raw channel values")
	)

	flag.Usage = func() {
		fmt.Printf(`shim-csv decodes an SD-log data file and converts it to CSV.

Usage: shim-csv [OPTIONS] FILE

Example:

 $> shim-csv -o out.csv ./testdata/000-data.bin
 $> shim-csv -raw ./testdata/000-data.bin

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("missing path to input SD-log file")
	}

	fname := flag.Arg(0)
	out := *oname
	if out == "" {
		out = strings.TrimSuffix(fname, ".bin") + ".csv"
	}

	err := process(out, fname, !*raw)
	if err != nil {
		log.Fatalf("could not convert file %q: %+v", fname, err)
	}
}

func process(oname, fname string, withCal bool) error {
	rec, err := record.DecodeFile(fname)
	if err != nil {
		return fmt.Errorf("could not decode %q: %w", fname, err)
	}
	for _, warn := range rec.Warnings {
		log.Printf("%q: %v", fname, warn)
	}

	tbl, err := csvutil.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", oname, err)
	}
	defer tbl.Close()
	tbl.Writer.Comma = ';'

	cols := []string{"Timestamp", "Tick"}
	for _, ch := range rec.Schema {
		cols = append(cols, ch.ID.Name())
	}
	var sensors []sdlog.CalSensor
	if withCal {
		for s := sdlog.CalSensor(0); s < sdlog.NumCalSensors; s++ {
			if _, ok := rec.Cal[s]; !ok {
				continue
			}
			sensors = append(sensors, s)
			for _, id := range calib.Axes(s) {
				cols = append(cols, id.Name()+"_CAL")
			}
		}
	}

	err = tbl.WriteHeader(strings.Join(cols, ";") + "\n")
	if err != nil {
		return fmt.Errorf("could not write CSV header: %w", err)
	}

	row := make([]interface{}, len(cols))
	for i := 0; i < rec.N; i++ {
		row = row[:0]
		row = append(row, rec.Timestamps[i], rec.Ticks[i])
		for _, ch := range rec.Schema {
			row = append(row, rec.Raw[ch.ID][i])
		}
		for _, s := range sensors {
			cal := rec.Cal[s]
			row = append(row, cal[0][i], cal[1][i], cal[2][i])
		}
		err = tbl.WriteRow(row...)
		if err != nil {
			return fmt.Errorf("could not write CSV row %d: %w", i, err)
		}
	}

	err = tbl.Close()
	if err != nil {
		return fmt.Errorf("could not close %q: %w", oname, err)
	}
	return nil
}
