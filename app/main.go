package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	flags "github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mailsift/mailsift/app/webapi"
	"github.com/mailsift/mailsift/lib/mailsift"
	"github.com/mailsift/mailsift/lib/scorecheck"
)

type options struct {
	Server struct {
		ListenAddr string `long:"listen" env:"LISTEN" default:":8080" description:"listen address"`
		AuthPasswd string `long:"auth" env:"AUTH" description:"basic auth password for user \"mailsift\", disabled if not set"`
	} `group:"server" namespace:"server" env-namespace:"SERVER"`

	Model struct {
		Artifact        string `long:"artifact" env:"ARTIFACT" default:"model.gob" description:"model artifact location"`
		PersistFallback bool   `long:"persist-fallback" env:"PERSIST_FALLBACK" description:"persist the synthesized fallback model to the artifact location"`
		Watch           bool   `long:"watch" env:"WATCH" description:"watch the artifact for out-of-band replacement"`
	} `group:"model" namespace:"model" env-namespace:"MODEL"`

	Scoring struct {
		Threshold float64       `long:"threshold" env:"THRESHOLD" default:"0.5" description:"spam threshold, clamped to [0.1, 0.9]"`
		CacheSize int           `long:"cache-size" env:"CACHE_SIZE" default:"1000" description:"max number of cached scores"`
		CacheTTL  time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"10m" description:"cached score lifetime"`
	} `group:"scoring" namespace:"scoring" env-namespace:"SCORING"`

	Files struct {
		SeedSpam string `long:"seed-spam" env:"SEED_SPAM" description:"custom spam seed samples file, one per line"`
		SeedHam  string `long:"seed-ham" env:"SEED_HAM" description:"custom ham seed samples file, one per line"`
	} `group:"files" namespace:"files" env-namespace:"FILES"`

	Logger struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable rotated verdict report log"`
		FileName   string `long:"file" env:"FILE" default:"mailsift.log" description:"location of verdict report log"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	HistorySize int  `long:"history-size" env:"HISTORY_SIZE" default:"100" description:"session history size"`
	Dbg         bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "local"

func main() {
	fmt.Printf("mailsift %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	p.SubcommandsOptional = true
	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, opts.Server.AuthPasswd)
	log.Printf("[DEBUG] options: %+v", opts)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, opts options) error {
	threshold := opts.Scoring.Threshold
	if threshold < 0.1 || threshold > 0.9 {
		clamped := math.Min(0.9, math.Max(0.1, threshold))
		log.Printf("[WARN] threshold %.2f out of [0.1, 0.9], clamped to %.2f", threshold, clamped)
		threshold = clamped
	}

	// resolve the model, once per process
	provider := &mailsift.Provider{
		ArtifactPath:    opts.Model.Artifact,
		PersistFallback: opts.Model.PersistFallback,
		Samples:         makeSeedSamples(opts),
	}
	pipeline, source := provider.Resolve()
	log.Printf("[INFO] model source: %s", source)

	reportWr, err := makeReportWriter(opts)
	if err != nil {
		return fmt.Errorf("can't make verdict report writer: %w", err)
	}
	defer reportWr.Close()

	if opts.Model.Watch && opts.Model.Artifact != "" {
		go func() {
			if werr := watchArtifact(ctx, opts.Model.Artifact); werr != nil {
				log.Printf("[WARN] artifact watcher failed: %v", werr)
			}
		}()
	}

	srv := webapi.NewServer(webapi.Config{
		Version:    revision,
		ListenAddr: opts.Server.ListenAddr,
		Scorer:     mailsift.NewScorer(pipeline, opts.Scoring.CacheSize, opts.Scoring.CacheTTL),
		Source:     source,
		Threshold:  threshold,
		History:    scorecheck.NewHistory(opts.HistorySize),
		Reporter:   makeVerdictReporter(reportWr),
		AuthPasswd: opts.Server.AuthPasswd,
		Dbg:        opts.Dbg,
	})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("webapi server failed, %w", err)
	}
	return nil
}

// makeSeedSamples loads the custom seed corpus if both sample files are set,
// the builtin corpus is used otherwise. Load failures are not fatal, the
// fallback fit can always proceed on the builtin corpus.
func makeSeedSamples(opts options) []mailsift.Sample {
	if opts.Files.SeedSpam == "" || opts.Files.SeedHam == "" {
		return nil // provider defaults to the builtin seed corpus
	}
	samples, err := mailsift.ReadSampleFiles(opts.Files.SeedSpam, opts.Files.SeedHam)
	if err != nil {
		log.Printf("[WARN] can't load custom seed samples, using builtin: %v", err)
		return nil
	}
	log.Printf("[INFO] custom seed corpus loaded, %d samples", len(samples))
	return samples
}

// makeVerdictReporter creates a reporter to keep records about verdicts
// it writes json lines to the provided writer
func makeVerdictReporter(wr io.Writer) webapi.Reporter {
	return webapi.ReporterFunc(func(e scorecheck.Entry) {
		verdict := "ham"
		if e.Spam {
			verdict = "spam"
		}
		m := struct {
			TimeStamp   string  `json:"ts"`
			Verdict     string  `json:"verdict"`
			Probability float64 `json:"probability"`
			Subject     string  `json:"subject"`
			Excerpt     string  `json:"excerpt"`
		}{
			TimeStamp:   e.Time.In(time.Local).Format(time.RFC3339),
			Verdict:     verdict,
			Probability: e.Probability,
			Subject:     e.Subject,
			Excerpt:     e.Excerpt,
		}
		line, err := json.Marshal(&m)
		if err != nil {
			log.Printf("[WARN] can't marshal json, %v", err)
			return
		}
		if _, err := wr.Write(append(line, '\n')); err != nil {
			log.Printf("[WARN] can't write to report log, %v", err)
		}
	})
}

// makeReportWriter creates the verdict report writer
// it parses options and makes lumberjack logger with rotation
func makeReportWriter(opts options) (accessLog io.WriteCloser, err error) {
	if !opts.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	maxSize, perr := sizeParse(opts.Logger.MaxSize)
	if perr != nil {
		return nil, fmt.Errorf("can't parse logger MaxSize: %w", perr)
	}

	maxSize /= 1048576

	log.Printf("[INFO] verdict report log enabled for %s, max size %dM", opts.Logger.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   opts.Logger.FileName,
		MaxSize:    int(maxSize), // in MB
		MaxBackups: opts.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

// sizeParse converts size strings with k/m/g/t suffixes to bytes
func sizeParse(inp string) (uint64, error) {
	if inp == "" {
		return 0, errors.New("empty value")
	}
	for i, sfx := range []string{"k", "m", "g", "t"} {
		if strings.HasSuffix(inp, strings.ToUpper(sfx)) || strings.HasSuffix(inp, strings.ToLower(sfx)) {
			val, err := strconv.Atoi(inp[:len(inp)-1])
			if err != nil {
				return 0, fmt.Errorf("can't parse %s: %w", inp, err)
			}
			return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
		}
	}
	return strconv.ParseUint(inp, 10, 64)
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	nonEmpty := []string{}
	for _, secret := range secrets {
		if secret != "" {
			nonEmpty = append(nonEmpty, secret)
		}
	}
	if len(nonEmpty) > 0 {
		logOpts = append(logOpts, lgr.Secret(nonEmpty...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
