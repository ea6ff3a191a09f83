// Command codecpump drives a video and an audio chain of engines to completion.
//
// The video chain packetizes H264 access units into RTP packets, protects them
// with SRTP, unprotects and depacketizes them, and muxes them into MPEG-TS.
// The audio chain packetizes and depacketizes LPCM samples.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bluenviron/codecpump"
	"github.com/bluenviron/codecpump/pkg/codec"
	"github.com/bluenviron/codecpump/pkg/engine"
	"github.com/bluenviron/codecpump/pkg/extractor"
	"github.com/bluenviron/codecpump/pkg/format"
	"github.com/bluenviron/codecpump/pkg/processor"
)

var version = "dev"

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func parseReconfigureMode(v string) (codecpump.ReconfigureMode, error) {
	switch v {
	case "none":
		return codecpump.ReconfigureNone, nil
	case "flush":
		return codecpump.ReconfigureFlush, nil
	case "restart":
		return codecpump.ReconfigureRestart, nil
	}
	return 0, fmt.Errorf("invalid reconfiguration mode '%s'", v)
}

type config struct {
	input       string
	output      string
	sdpInput    string
	sdpOutput   string
	frames      int
	reconfigure codecpump.ReconfigureMode
}

func loadConfig() (*config, error) {
	frames, err := envInt("FRAMES", 300)
	if err != nil {
		return nil, fmt.Errorf("FRAMES: %w", err)
	}

	reconfigure, err := parseReconfigureMode(envOr("RECONFIGURE", "none"))
	if err != nil {
		return nil, err
	}

	return &config{
		input:       os.Getenv("INPUT"),
		output:      envOr("OUTPUT", "output.ts"),
		sdpInput:    os.Getenv("SDP_INPUT"),
		sdpOutput:   os.Getenv("SDP_OUTPUT"),
		frames:      frames,
		reconfigure: reconfigure,
	}, nil
}

func defaultFormats() (*format.H264, *format.LPCM) {
	sps, pps := extractor.SyntheticH264Params()

	video := &format.H264{
		PayloadTyp:        96,
		SPS:               sps,
		PPS:               pps,
		PacketizationMode: 1,
	}

	audio := &format.LPCM{
		PayloadTyp:   97,
		BitDepth:     16,
		SampleRate:   48000,
		ChannelCount: 2,
	}

	return video, audio
}

// loadFormats reads the formats of the chains from a session description.
// The first H264 and the first LPCM media are used.
func loadFormats(path string) (*format.H264, *format.LPCM, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	formats, err := format.ParseSession(buf)
	if err != nil {
		return nil, nil, err
	}

	var video *format.H264
	var audio *format.LPCM

	for _, f := range formats {
		switch f := f.(type) {
		case *format.H264:
			if video == nil {
				video = f
			}

		case *format.LPCM:
			if audio == nil {
				audio = f
			}
		}
	}

	if video == nil {
		return nil, nil, fmt.Errorf("H264 media not found")
	}
	if audio == nil {
		return nil, nil, fmt.Errorf("LPCM media not found")
	}

	return video, audio, nil
}

// writeFormats writes the formats of the chains into a session description.
func writeFormats(path string, video *format.H264, audio *format.LPCM) error {
	buf, err := format.MarshalSession([]format.Format{video, audio})
	if err != nil {
		return err
	}

	return os.WriteFile(path, buf, 0o644)
}

// openVideoSource returns the video track.
// When reading from a file, the format found in the file replaces videoFormat.
func openVideoSource(conf *config, videoFormat *format.H264) (*extractor.Track, *format.H264, error) {
	if conf.input == "" {
		src, err := extractor.GenerateH264(conf.frames, 30, 40*time.Millisecond)
		if err != nil {
			return nil, nil, err
		}
		return src, videoFormat, nil
	}

	f, err := os.Open(conf.input)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	return extractor.ReadMPEGTS(f)
}

// newEngines configures and starts an engine for every processor.
func newEngines(forma format.Format, procs ...codec.Processor) ([]engine.Engine, error) {
	ret := make([]engine.Engine, 0, len(procs))

	release := func() {
		for _, eng := range ret {
			eng.Release()
		}
	}

	for _, proc := range procs {
		c := &codec.Codec{Processor: proc}

		err := c.Configure(forma)
		if err != nil {
			release()
			return nil, err
		}

		err = c.Start()
		if err != nil {
			c.Release()
			release()
			return nil, err
		}

		ret = append(ret, c)
	}

	return ret, nil
}

func newVideoPump(conf *config, forma *format.H264, src *extractor.Track) (*codecpump.Pump, error) {
	key := make([]byte, processor.SRTPKeyLength)
	_, err := rand.Read(key)
	if err != nil {
		return nil, err
	}

	stages, err := newEngines(forma,
		&processor.H264Packetizer{},
		&processor.SRTPProtector{Key: key},
		&processor.SRTPUnprotector{Key: key},
		&processor.H264Depacketizer{},
		&processor.MPEGTSMuxer{})
	if err != nil {
		return nil, err
	}

	return &codecpump.Pump{
		Stages:           stages,
		Source:           src,
		Policy:           codecpump.Policy{Mode: conf.reconfigure},
		Mode:             codecpump.RecordData,
		VerifyTimestamps: true,
		Log:              slog.Default().With("chain", "video"),
		OnOutputFormatChanged: func(stage int, f format.Format) {
			slog.Debug("output format changed", "chain", "video", "stage", stage, "codec", f.Codec())
		},
		OnReconfigure: func(r codecpump.Reconfiguration) {
			slog.Info("video chain reconfigured", "mode", r.Mode, "discarded", r.DiscardedUnits)
		},
	}, nil
}

func newAudioPump(conf *config, forma *format.LPCM) (*codecpump.Pump, error) {
	samples, err := extractor.GenerateTone(forma, 440, time.Duration(conf.frames)*40*time.Millisecond)
	if err != nil {
		return nil, err
	}

	src, err := extractor.NewLPCMTrack(forma, samples, 20*time.Millisecond)
	if err != nil {
		return nil, err
	}

	stages, err := newEngines(forma,
		&processor.LPCMPacketizer{},
		&processor.LPCMDepacketizer{})
	if err != nil {
		return nil, err
	}

	return &codecpump.Pump{
		Stages: stages,
		Source: src,
		Policy: codecpump.Policy{Mode: conf.reconfigure},
		Mode:   codecpump.RecordChecksum,
		Log:    slog.Default().With("chain", "audio"),
	}, nil
}

func run(ctx context.Context, conf *config) error {
	videoFormat, audioFormat := defaultFormats()

	if conf.sdpInput != "" {
		var err error
		videoFormat, audioFormat, err = loadFormats(conf.sdpInput)
		if err != nil {
			return fmt.Errorf("SDP input: %w", err)
		}
	}

	src, videoFormat, err := openVideoSource(conf, videoFormat)
	if err != nil {
		return fmt.Errorf("video source: %w", err)
	}

	if conf.sdpOutput != "" {
		err = writeFormats(conf.sdpOutput, videoFormat, audioFormat)
		if err != nil {
			return fmt.Errorf("SDP output: %w", err)
		}
	}

	video, err := newVideoPump(conf, videoFormat, src)
	if err != nil {
		return fmt.Errorf("video chain: %w", err)
	}

	audio, err := newAudioPump(conf, audioFormat)
	if err != nil {
		for _, eng := range video.Stages {
			eng.Release()
		}
		return fmt.Errorf("audio chain: %w", err)
	}

	g := &codecpump.Group{Pumps: []*codecpump.Pump{video, audio}}

	recs, err := g.Run(ctx)
	if err != nil {
		return err
	}

	for i, name := range []string{"video", "audio"} {
		rec := recs[i]
		slog.Info("chain completed",
			"chain", name,
			"units", rec.Units,
			"bytes", rec.Bytes,
			"eos", rec.OutputEOS,
			"incomplete", rec.Incomplete,
			"stopped", rec.Stopped,
			"reconfigured", rec.Reconfigured)
	}

	if recs[0].TimestampMismatches != 0 {
		slog.Warn("video timestamps not preserved", "mismatches", recs[0].TimestampMismatches)
	}

	return os.WriteFile(conf.output, recs[0].Data, 0o644)
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	conf, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("codecpump starting",
		"version", version,
		"input", conf.input,
		"output", conf.output,
		"reconfigure", conf.reconfigure)

	err = run(ctx, conf)
	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}
