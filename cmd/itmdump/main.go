package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"github.com/robotalks/itmdump/pkg/fifo"
	"github.com/robotalks/itmdump/pkg/itm"
	"github.com/robotalks/itmdump/pkg/run"
	"github.com/robotalks/itmdump/pkg/sink"
	mqttsink "github.com/robotalks/itmdump/pkg/sink/mqtt"
	wssink "github.com/robotalks/itmdump/pkg/sink/ws"
)

var (
	stimulus   int
	mqttURL    string
	listenAddr string
	configFile string
)

func init() {
	if val := os.Getenv("ITMDUMP_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.IntVar(&stimulus, "stimulus", stimulus, "Stimulus port to extract ITM data for.")
	flag.IntVar(&stimulus, "s", stimulus, "Short for -stimulus.")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "Publish extracted data to this MQTT broker URL (mqtt://host:port/topic).")
	flag.StringVar(&listenAddr, "listen", listenAddr, "Serve extracted data to WebSocket viewers on this address.")
	flag.StringVar(&configFile, "config", configFile, "Optional TOML config file. Flags take precedence.")
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] PATH\n\nPATH names the pipe the ITM producer writes into.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	conf, err := resolveSettings()
	if err != nil {
		log.Fatalln(err)
	}
	if err := collect(conf); err != nil {
		log.Fatalln(err)
	}
}

// flagSettings seeds settings from the flag values, which already carry
// the built-in and env-derived defaults.
func flagSettings() *settings {
	return &settings{
		stimulus:   stimulus,
		mqttURL:    mqttURL,
		listenAddr: listenAddr,
	}
}

func resolveSettings() (*settings, error) {
	conf := flagSettings()
	if configFile != "" {
		if err := loadFileConfig(configFile, conf); err != nil {
			return nil, err
		}
	}
	// explicitly set flags win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "stimulus", "s":
			conf.stimulus = stimulus
		case "mqtt":
			conf.mqttURL = mqttURL
		case "listen":
			conf.listenAddr = listenAddr
		}
	})
	if flag.NArg() > 1 {
		return nil, fmt.Errorf("expected one pipe path, got %d arguments", flag.NArg())
	}
	if flag.NArg() == 1 {
		conf.pipe = flag.Arg(0)
	}
	return conf, conf.validate()
}

func collect(conf *settings) error {
	stream, err := fifo.Open(conf.pipe)
	if err != nil {
		return err
	}

	writers := []io.Writer{os.Stdout}

	if conf.mqttURL != "" {
		pub, err := mqttsink.NewPublisher(conf.mqttURL, fmt.Sprintf("itm/stimulus/%d", conf.stimulus))
		if err != nil {
			stream.Close()
			return err
		}
		if err := pub.Connect(); err != nil {
			stream.Close()
			return fmt.Errorf("couldn't connect to MQTT broker %s: %v", conf.mqttURL, err)
		}
		defer pub.Close()
		writers = append(writers, pub)
	}

	runner := run.NewRunner().HandleSignals()

	if conf.listenAddr != "" {
		lis, err := net.Listen("tcp", conf.listenAddr)
		if err != nil {
			stream.Close()
			return fmt.Errorf("couldn't listen on %s: %v", conf.listenAddr, err)
		}
		b := wssink.NewBroadcaster()
		writers = append(writers, b)
		runner.Go(&wssink.Server{Listener: lis, Broadcaster: b})
	}

	var out io.Writer = writers[0]
	if len(writers) > 1 {
		out = sink.NewTee(writers...)
	}

	dec := itm.NewDecoder(stream, out, uint8(conf.stimulus))
	runner.Go(run.RunnableFunc(func(ctx context.Context) error {
		return run.WithCloser(ctx, stream, func() error {
			return dec.Run(ctx)
		})
	}))
	return runner.Wait()
}
