// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// shim-dump decodes and displays SD-log data files.
//
// Usage: shim-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> shim-dump ./testdata/000-data.bin
//	=== recording D0:2B:46:01:02:03 ===
//	Sample rate:        512 Hz
//	Channels:             3 (Accel_LN_X Accel_LN_Y Accel_LN_Z)
//	Samples:              2
//	Calibrated:           1 sensor(s)
//	  tick=       0 t=   1001.000000 [3 4 0]
//	  tick=   32768 t=   1002.000000 [-3 -4 0]
//	[...]
package main // import "github.com/wearlog/shim/cmd/shim-dump"

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/wearlog/shim/record"
)

func main() {
	log.SetPrefix("shim-dump: ")
	log.SetFlags(0)

	nmax := flag.Int("n", 0, "maximum number of samples to display (0: all)")

	flag.Usage = func() {
		fmt.Printf(`shim-dump decodes and displays SD-log data files.

Usage: shim-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> shim-dump ./testdata/000-data.bin
 === recording D0:2B:46:01:02:03 ===
 Sample rate:        512 Hz
 Channels:             3 (Accel_LN_X Accel_LN_Y Accel_LN_Z)
 Samples:              2
 Calibrated:           1 sensor(s)
   tick=       0 t=   1001.000000 [3 4 0]
   tick=   32768 t=   1002.000000 [-3 -4 0]
 [...]

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input SD-log file")
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, *nmax)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, nmax int) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	rec, err := record.DecodeFile(fname)
	if err != nil {
		return fmt.Errorf("could not decode %q: %w", fname, err)
	}

	names := make([]string, len(rec.Schema))
	for i, ch := range rec.Schema {
		names[i] = ch.ID.Name()
	}

	fmt.Fprintf(wbuf, "=== recording %s ===\n", rec.Header.MACString())
	fmt.Fprintf(wbuf, "Sample rate: % 10v Hz\n", rec.Header.SampleRate())
	fmt.Fprintf(wbuf, "Channels:    % 10d (%s)\n", len(rec.Schema), strings.Join(names, " "))
	fmt.Fprintf(wbuf, "Samples:     % 10d\n", rec.N)
	fmt.Fprintf(wbuf, "Calibrated:  % 10d sensor(s)\n", len(rec.Cal))
	for _, warn := range rec.Warnings {
		fmt.Fprintf(wbuf, "WARN: %v\n", warn)
	}

	n := rec.N
	if nmax > 0 && nmax < n {
		n = nmax
	}
	for i := 0; i < n; i++ {
		vs := make([]string, len(rec.Schema))
		for j, ch := range rec.Schema {
			vs[j] = fmt.Sprint(rec.Raw[ch.ID][i])
		}
		fmt.Fprintf(wbuf, "  tick=% 8d t=% 14.6f [%s]\n",
			rec.Ticks[i], rec.Timestamps[i], strings.Join(vs, " "),
		)
	}
	if n < rec.N {
		fmt.Fprintf(wbuf, "  ... %d more sample(s)\n", rec.N-n)
	}

	return nil
}
