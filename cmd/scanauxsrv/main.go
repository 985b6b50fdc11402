package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	yml "gopkg.in/yaml.v2"

	"github.com/jlarkin/scanaux/blanking"
	"github.com/jlarkin/scanaux/bridge"
	"github.com/jlarkin/scanaux/daq"
	"github.com/jlarkin/scanaux/frametime"
	"github.com/jlarkin/scanaux/monitor"
	"github.com/jlarkin/scanaux/playback"
	"github.com/jlarkin/scanaux/recorder"
	"github.com/jlarkin/scanaux/server"
	"github.com/jlarkin/scanaux/server/middleware/locker"
	"github.com/jlarkin/scanaux/sim"
	"github.com/jlarkin/scanaux/telemetry"
	"github.com/jlarkin/scanaux/vdaq"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "scanauxsrv.yml"
	k              = koanf.New(".")
)

// Config is the top level server configuration
type Config struct {
	Addr string `yaml:"addr" koanf:"addr"`

	// Backend selects the acquisition hardware, "sim" or "vdaq"
	Backend    string `yaml:"backend" koanf:"backend"`
	VDAQAddr   string `yaml:"vdaqAddr" koanf:"vdaqAddr"`
	VDAQSerial bool   `yaml:"vdaqSerial" koanf:"vdaqSerial"`

	// capture configuration
	Channels     []int      `yaml:"channels" koanf:"channels"`
	ChannelNames []string   `yaml:"channelNames" koanf:"channelNames"`
	SampleRate   float64    `yaml:"sampleRate" koanf:"sampleRate"`
	VoltageRange [2]float64 `yaml:"voltageRange" koanf:"voltageRange"`

	// playback configuration
	OutputRate  float64             `yaml:"outputRate" koanf:"outputRate"`
	ScannerHz   float64             `yaml:"scannerHz" koanf:"scannerHz"`
	Bidi        bool                `yaml:"bidi" koanf:"bidi"`
	TriggerLine string              `yaml:"triggerLine" koanf:"triggerLine"`
	TriggerEdge string              `yaml:"triggerEdge" koanf:"triggerEdge"`
	Timing      blanking.TimingSpec `yaml:"timing" koanf:"timing"`

	// logging configuration
	Logging bool   `yaml:"logging" koanf:"logging"`
	LogDir  string `yaml:"logDir" koanf:"logDir"`
	LogStem string `yaml:"logStem" koanf:"logStem"`

	SettingsDir  string `yaml:"settingsDir" koanf:"settingsDir"`
	MonitorDepth int    `yaml:"monitorDepth" koanf:"monitorDepth"`

	// MQTTBroker enables event publishing when nonempty, e.g. "tcp://host:1883"
	MQTTBroker string `yaml:"mqttBroker" koanf:"mqttBroker"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:         ":8700",
		Backend:      "sim",
		VDAQAddr:     "192.168.100.40:9750",
		Channels:     []int{0, 1},
		ChannelNames: []string{"pmt", "pockels"},
		SampleRate:   125e3,
		VoltageRange: [2]float64{-10, 10},
		OutputRate:   1e6,
		ScannerHz:    7910,
		Bidi:         true,
		TriggerLine:  "PFI0",
		TriggerEdge:  "rising",
		Timing:       blanking.TimingSpec{Dur1: 2, Gap1: 31, Dur2: 10, Gap2: 31, EndState: true},
		LogDir:       ".",
		LogStem:      "scanaux",
		SettingsDir:  "settings",
		MonitorDepth: 4096}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `scanauxsrv bridges a scanning microscope's acquisition engine to auxiliary
DAQ hardware: monitor blanking playback, analog input logging, and live
monitoring, all over HTTP.

Usage:
	scanauxsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `scanauxsrv is amenable to configuration via its .yaml file.  For a primer on
YAML, see https://yaml.org/start.html

backend is "sim" for an in-memory simulator, or "vdaq" for a networked DAQ
chassis at vdaqAddr (vdaqSerial: true for RS232).

The engine posts state transitions to /bridge/notify as {"str": "grab"} and
so on; frame events go to /frametime/frame.  The blanking waveform is staged
at /playback/timing and committed with /playback/apply.

Sessions are logged to logDir as <logStem>_NNNNN.bin with a JSON sidecar.
GET /endpoints lists every route.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
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
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("scanauxsrv version %v\n", Version)
}

// device is the full capability set both backends provide
type device interface {
	playback.Task
	daq.AnalogCapturer
	daq.Releaser
}

func setupBackend(c Config) (device, error) {
	switch strings.ToLower(c.Backend) {
	case "sim":
		return sim.New(), nil
	case "vdaq":
		return vdaq.New(c.VDAQAddr, c.VDAQSerial)
	default:
		return nil, fmt.Errorf("backend must be sim or vdaq, got %q", c.Backend)
	}
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}

	meta := recorder.Metadata{
		ChannelIndices: c.Channels,
		ChannelNames:   c.ChannelNames,
		VoltageRange:   c.VoltageRange,
		SampleRate:     c.SampleRate,
	}
	template := recorder.NewTemplate(meta)

	task, err := setupBackend(c)
	if err != nil {
		log.Fatal("error connecting to acquisition backend: ", err)
	}

	if err := task.SetTriggerLine(c.TriggerLine); err != nil {
		log.Fatal("error setting trigger line: ", err)
	}
	if err := task.SetTriggerEdge(c.TriggerEdge); err != nil {
		log.Fatal("error setting trigger edge: ", err)
	}

	pb := playback.New(task, c.OutputRate, c.ScannerHz, c.Bidi)
	if err := pb.Configure(c.Timing); err != nil {
		log.Fatal("error loading blanking waveform: ", err)
	}
	if wf := pb.Waveform(); wf.Truncated || wf.ShadowForced {
		log.Printf("blanking waveform warnings: truncated=%v shadowForced=%v",
			wf.Truncated, wf.ShadowForced)
	}

	eng := &bridge.StaticEngine{
		Logging:   c.Logging,
		Dir:       c.LogDir,
		Stem:      c.LogStem,
		Trigger:   c.TriggerLine,
		ScannerHz: c.ScannerHz,
	}
	brd := bridge.New(task, eng, template.Snapshot())

	mon := monitor.New(meta, c.MonitorDepth)
	ft := frametime.New(c.MonitorDepth)
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	brd.Subscribe(mon)
	brd.Subscribe(ft)
	brd.Subscribe(metrics)
	if c.MQTTBroker != "" {
		pub, err := telemetry.NewPublisher(c.MQTTBroker)
		if err != nil {
			log.Println("error connecting to MQTT broker, events will not publish: ", err)
		} else {
			brd.Subscribe(pub)
			defer pub.Close()
		}
	}

	lock := locker.New()
	httpPB := playback.NewHTTPPlayback(pb)
	locker.Inject(httpPB, lock)

	rootR := chi.NewRouter()
	rootR.Use(middleware.Logger)

	endpoints := []string{"GET /endpoints", "GET /metrics"}
	mount := func(prefix string, h server.HTTPer, locked bool) {
		r := chi.NewRouter()
		if locked {
			r.Use(lock.Check)
		}
		h.RT().Bind(r)
		rootR.Mount(prefix, r)
		for _, e := range h.RT().Endpoints() {
			parts := strings.SplitN(e, " ", 2)
			endpoints = append(endpoints, parts[0]+" "+prefix+parts[1])
		}
	}
	mount("/playback", httpPB, true)
	mount("/bridge", bridge.NewHTTPBridge(brd), false)
	mount("/recorder", recorder.NewHTTPRecorder(template, c.SettingsDir), true)
	mount("/monitor", mon, false)
	mount("/frametime", ft, false)
	rootR.Handle("/metrics", promhttp.Handler())
	rootR.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		sort.Strings(endpoints)
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, strings.Join(endpoints, "\n"))
	})

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		log.Println("shutting down, releasing acquisition hardware")
		brd.Close()
		os.Exit(0)
	}()
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, rootR))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
