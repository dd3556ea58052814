package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"
	"goji.io"
	yml "gopkg.in/yaml.v2"

	"github.com/uaitl/focalsrv/detimage"
	"github.com/uaitl/focalsrv/fitsfile"
	"github.com/uaitl/focalsrv/focalplane"
	"github.com/uaitl/focalsrv/generichttp/detector"
	"github.com/uaitl/focalsrv/imgrec"
	"github.com/uaitl/focalsrv/server/middleware/locker"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "2"

	// ConfigFileName is what it sounds like
	ConfigFileName = "focalsrv.yml"
	k              = koanf.New(".")
)

type recorder struct {
	// Root is the root folder to archive to
	Root string `yaml:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix"`
}

type config struct {
	Addr           string   `yaml:"Addr"`
	Root           string   `yaml:"Root"`
	Overwrite      bool     `yaml:"Overwrite"`
	MakeLockfile   bool     `yaml:"MakeLockfile"`
	SaveDataFormat int      `yaml:"SaveDataFormat"`
	FileType       int      `yaml:"FileType"`
	Recorder       recorder `yaml:"Recorder"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		Addr:           ":8000",
		Root:           "/image",
		Overwrite:      false,
		MakeLockfile:   false,
		SaveDataFormat: 16,
		FileType:       fitsfile.TypeASM,
		Recorder:       recorder{}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `focalsrv assembles raw multi-amplifier detector readouts into science images
and exposes the image pipeline over HTTP.  Clients load a raw exposure,
adjust the per-amplifier scaling, and fetch or archive the assembled frame.

Usage:
	focalsrv <command>

Commands:
	run
	assemble <input> <output>
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `focalsrv is amenable to configuration via its .yaml file.  For a primer on
YAML, see https://yaml.org/start.html

The command mkconf generates the configuration file with the default values.

SaveDataFormat is a FITS BITPIX value: 8, 16, 32, or 64 for integers,
-32 or -64 for floats.  It controls the on-disk sample format only; the
assembly arithmetic is always floating point.

The assemble command is a one-shot converter: it reads a raw single or
multi-extension FITS file, assembles it with margins trimmed, and writes a
single-extension FITS file with the configured sample format.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("focalsrv version %v\n", Version)
}

// subMuxSanitize cleans a config Root into a chi mount pattern
func subMuxSanitize(s string) string {
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return strings.TrimSuffix(s, "/")
}

func run() {
	cfg := config{}
	k.Unmarshal("", &cfg)

	// the served image starts as an empty single-amplifier placeholder;
	// clients POST /load to swap in a real exposure
	img := detimage.New(focalplane.Geometry{
		NumAmpsX:     1,
		NumAmpsY:     1,
		AmpCols:      1,
		AmpRows:      1,
		ReadoutOrder: []int{0},
		FlipCodes:    []focalplane.FlipCode{focalplane.FlipNone},
	})

	var rec *imgrec.Recorder
	if cfg.Recorder.Root != "" {
		rec = &imgrec.Recorder{Root: cfg.Recorder.Root, Prefix: cfg.Recorder.Prefix, Enabled: true}
	}
	lk := locker.New()
	opt := fitsfile.WriteOptions{
		FileType:       cfg.FileType,
		Overwrite:      cfg.Overwrite,
		MakeLockfile:   cfg.MakeLockfile,
		SaveDataFormat: cfg.SaveDataFormat,
	}
	w := detector.NewHTTPImage(img, rec, lk, opt)

	mux := goji.NewMux()
	w.RT().Bind(mux)

	hndlrS := subMuxSanitize(cfg.Root)
	rt := chi.NewRouter()
	rt.Use(middleware.Logger)
	rt.Mount(hndlrS, lk.Check(mux))
	log.Println("now listening for requests at ", cfg.Addr+hndlrS)
	log.Fatal(http.ListenAndServe(cfg.Addr, rt))
}

func assemble(in, out string) {
	cfg := config{}
	k.Unmarshal("", &cfg)

	scfg := yacspin.Config{
		Frequency:     100 * time.Millisecond,
		CharSet:       yacspin.CharSets[59],
		Suffix:        " assembling " + in,
		StopCharacter: "done",
	}
	spinner, err := yacspin.New(scfg)
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()

	img, err := fitsfile.ReadFile(in)
	if err != nil {
		spinner.StopFail()
		log.Fatal(err)
	}
	err = img.Assemble(detimage.TrimApply)
	if err != nil {
		spinner.StopFail()
		log.Fatal(err)
	}
	err = fitsfile.WriteFile(img, out, fitsfile.WriteOptions{
		FileType:       fitsfile.TypeASM,
		Overwrite:      cfg.Overwrite,
		MakeLockfile:   cfg.MakeLockfile,
		SaveDataFormat: cfg.SaveDataFormat,
	})
	if err != nil {
		spinner.StopFail()
		log.Fatal(err)
	}
	spinner.Stop()
	cols, rows := img.Size()
	log.Printf("wrote %s, %d x %d\n", out, cols, rows)
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "assemble":
		if len(args) < 4 {
			log.Fatal("assemble requires <input> and <output> filenames")
		}
		assemble(args[2], args[3])
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}
