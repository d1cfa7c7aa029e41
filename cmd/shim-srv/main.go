// Copyright 2023 The wearlog Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command shim-srv receives SD-log data files from the companion phone
// application and serves them back, raw or decoded.
//
// Usage: shim-srv [OPTIONS]
//
// The HTTP API is:
//
//	POST /upload/             multipart upload of one SD-log file
//	GET  /files/              JSON list of the stored files
//	GET  /download/<name>     raw content of one stored file
//	GET  /decode/<name>       JSON summary of one decoded file
//
// Uploaded files are decoded on arrival. A file that fails to decode is
// kept on disk and an alert mail is sent, so the broken recording can
// be inspected later. Alert-mail credentials come from the MAIL_USERNAME,
// MAIL_PASSWORD, MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment
// variables.
//
// When a metadata database is configured, every successfully decoded
// upload is registered there, mapped to the patient currently wearing
// the device.
package main // import "github.com/wearlog/shim/cmd/shim-srv"

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	mail "gopkg.in/gomail.v2"
	"gopkg.in/yaml.v3"

	"github.com/wearlog/shim/metadb"
	"github.com/wearlog/shim/record"
)

func main() {
	log.SetPrefix("shim-srv: ")
	log.SetFlags(0)

	var (
		addr  = flag.String("addr", ":8080", "[ip]:port to listen on")
		dir   = flag.String("dir", ".", "directory where to store uploaded files")
		fname = flag.String("cfg", "", "path to an optional YAML configuration file")
	)

	flag.Parse()

	cfg := Config{Addr: *addr, Dir: *dir}
	if *fname != "" {
		var err error
		cfg, err = loadConfig(*fname)
		if err != nil {
			log.Fatalf("could not load configuration %q: %+v", *fname, err)
		}
	}

	srv, err := newServer(cfg)
	if err != nil {
		log.Fatalf("could not create server: %+v", err)
	}
	defer srv.close()

	log.Printf("running shim-srv server on %q...", cfg.Addr)
	err = http.ListenAndServe(cfg.Addr, srv.mux())
	if err != nil {
		log.Fatalf("could not serve %q: %+v", cfg.Addr, err)
	}
}

// Config is the YAML on-disk configuration of shim-srv.
type Config struct {
	Addr string `yaml:"addr"` // [ip]:port to listen on
	Dir  string `yaml:"dir"`  // directory where to store uploaded files
	DB   string `yaml:"db"`   // metadata database name, empty to disable
}

func loadConfig(fname string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(fname)
	if err != nil {
		return cfg, fmt.Errorf("could not read configuration: %w", err)
	}
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("could not parse configuration: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	return cfg, nil
}

type server struct {
	dir string
	db  *metadb.DB // may be nil
}

func newServer(cfg Config) (*server, error) {
	err := os.MkdirAll(cfg.Dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("could not create storage directory %q: %w", cfg.Dir, err)
	}

	srv := &server{dir: cfg.Dir}
	if cfg.DB != "" {
		db, err := metadb.Open(cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("could not open metadata db %q: %w", cfg.DB, err)
		}
		srv.db = db
	}
	return srv, nil
}

func (srv *server) close() {
	if srv.db != nil {
		_ = srv.db.Close()
	}
}

func (srv *server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/", srv.handleUpload)
	mux.HandleFunc("/files/", srv.handleFiles)
	mux.HandleFunc("/download/", srv.handleDownload)
	mux.HandleFunc("/decode/", srv.handleDecode)
	return mux
}

func (srv *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
		return
	}

	src, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("could not read form file: %+v", err), http.StatusBadRequest)
		return
	}
	defer src.Close()

	fname, ok := srv.path(hdr.Filename)
	if !ok {
		http.Error(w, fmt.Sprintf("invalid file name %q", hdr.Filename), http.StatusBadRequest)
		return
	}

	dst, err := os.Create(fname)
	if err != nil {
		http.Error(w, fmt.Sprintf("could not create file: %+v", err), http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	if err != nil {
		http.Error(w, fmt.Sprintf("could not store file: %+v", err), http.StatusInternalServerError)
		return
	}
	err = dst.Close()
	if err != nil {
		http.Error(w, fmt.Sprintf("could not store file: %+v", err), http.StatusInternalServerError)
		return
	}

	log.Printf("stored %q (%d bytes)", hdr.Filename, hdr.Size)

	rec, err := record.DecodeFile(fname)
	if err != nil {
		log.Printf("could not decode %q: %+v", hdr.Filename, err)
		alertMail(hdr.Filename, err)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"filename": hdr.Filename,
			"message":  "Upload successful, decode failed",
		})
		return
	}
	for _, warn := range rec.Warnings {
		log.Printf("%q: %v", hdr.Filename, warn)
	}

	srv.register(r.Context(), hdr.Filename, rec)

	_ = json.NewEncoder(w).Encode(map[string]string{
		"filename": hdr.Filename,
		"message":  "Upload successful",
	})
}

// register stores the metadata of a decoded upload, mapped to the
// patient currently wearing the device. Metadata is best effort: a db
// failure does not fail the upload.
func (srv *server) register(ctx context.Context, fname string, rec *record.Recording) {
	if srv.db == nil {
		return
	}

	mac := rec.Header.MACString()
	patient, err := srv.db.PatientForDevice(ctx, mac)
	if err != nil {
		log.Printf("could not look up patient for %q: %+v", mac, err)
	}

	meta := metadb.Recording{
		Device:  mac,
		Patient: patient,
		Samples: int64(rec.N),
	}
	if rec.N > 0 {
		meta.Start = rec.Timestamps[0]
		meta.End = rec.Timestamps[rec.N-1]
	}
	id, err := srv.db.AddRecording(ctx, meta)
	if err != nil {
		log.Printf("could not register %q: %+v", fname, err)
		return
	}
	log.Printf("registered %q as %s (device=%s, patient=%q)", fname, id, mac, patient)
}

func (srv *server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
		return
	}

	files, err := os.ReadDir(srv.dir)
	if err != nil {
		http.Error(w, fmt.Sprintf("could not list files: %+v", err), http.StatusInternalServerError)
		return
	}

	names := []string{}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		names = append(names, file.Name())
	}
	_ = json.NewEncoder(w).Encode(names)
}

func (srv *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/download/")
	fname, ok := srv.path(name)
	if !ok {
		http.Error(w, fmt.Sprintf("invalid file name %q", name), http.StatusBadRequest)
		return
	}

	f, err := os.Open(fname)
	if err != nil {
		http.Error(w, fmt.Sprintf("could not open %q: %+v", name, err), http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	_, err = io.Copy(w, f)
	if err != nil {
		log.Printf("could not send %q: %+v", name, err)
	}
}

// Summary is the JSON decode report of one stored file.
type Summary struct {
	File       string   `json:"file"`
	Device     string   `json:"device"`
	SampleRate float64  `json:"sample_rate"`
	Channels   []string `json:"channels"`
	Samples    int      `json:"samples"`
	Start      float64  `json:"start,omitempty"`
	End        float64  `json:"end,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

func (srv *server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/decode/")
	fname, ok := srv.path(name)
	if !ok {
		http.Error(w, fmt.Sprintf("invalid file name %q", name), http.StatusBadRequest)
		return
	}

	if _, err := os.Stat(fname); err != nil {
		http.Error(w, fmt.Sprintf("could not find %q", name), http.StatusNotFound)
		return
	}

	rec, err := record.DecodeFile(fname)
	if err != nil {
		http.Error(w, fmt.Sprintf("could not decode %q: %+v", name, err), http.StatusUnprocessableEntity)
		return
	}

	sum := Summary{
		File:       name,
		Device:     rec.Header.MACString(),
		SampleRate: rec.Header.SampleRate(),
		Channels:   make([]string, len(rec.Schema)),
		Samples:    rec.N,
	}
	for i, ch := range rec.Schema {
		sum.Channels[i] = ch.ID.Name()
	}
	if rec.N > 0 {
		sum.Start = rec.Timestamps[0]
		sum.End = rec.Timestamps[rec.N-1]
	}
	for _, warn := range rec.Warnings {
		sum.Warnings = append(sum.Warnings, warn.String())
	}

	_ = json.NewEncoder(w).Encode(sum)
}

// path maps a client-provided file name to a location inside the
// storage directory. Names that escape the directory are rejected.
func (srv *server) path(name string) (string, bool) {
	if name == "" || name != filepath.Base(name) {
		return "", false
	}
	return filepath.Join(srv.dir, name), true
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func alertMail(fname string, cause error) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 || alertMailTgts[0] == "" {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[shim-srv] decode alert: %q", fname))
	msg.SetBody("text/plain", fmt.Sprintf("file: %q\nerror: %+v", fname, cause))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("could not parse integer %q: %+v", s, err)
		return 0
	}
	return v
}
