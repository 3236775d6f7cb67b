// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command furycodec is a small utility for inspecting Fury's Map wire
// format (see github.com/graildata/fury/mapcodec). It reads a JSON object
// from stdin and writes the Fury-encoded bytes to stdout, or, with
// -decode, reverses the process.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"reflect"

	"github.com/graildata/fury"
	"github.com/graildata/fury/flog"
	"github.com/graildata/fury/generic"
)

func main() {
	decode := flag.Bool("decode", false, "read Fury-encoded bytes from stdin and print the decoded map as JSON")
	trackRef := flag.Bool("track-ref", false, "enable reference tracking on both keys and values")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: furycodec [-decode] [-track-ref] < input > output\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	in, err := ioutil.ReadAll(os.Stdin)
	must(err)

	f := fury.New(fury.Config{TrackingRef: *trackRef})
	kt := generic.Of(reflect.TypeOf(""))
	vt := generic.Dynamic()

	if *decode {
		m, err := f.DecodeMapBytes(in, reflect.TypeOf(map[string]interface{}{}), kt, vt)
		must(err)
		out, err := json.MarshalIndent(m, "", "  ")
		must(err)
		os.Stdout.Write(out)
		fmt.Println()
		return
	}

	var m map[string]interface{}
	must(json.Unmarshal(in, &m))
	out, err := f.EncodeMapBytes(m, kt, vt)
	must(err)
	os.Stdout.Write(out)
}

func must(err error) {
	if err != nil {
		flog.Fatalf("furycodec: %v", err)
	}
}
