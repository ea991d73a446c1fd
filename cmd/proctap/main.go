package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/proctap/pkg/proctap"
	_ "github.com/xaionaro-go/proctap/pkg/proctap/backends"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	pidFlag := pflag.Int32("pid", 0, "the PID of the process to capture")
	nameFlag := pflag.String("name", "", "the executable name of the process to capture (an alternative to --pid)")
	stdoutFlag := pflag.Bool("stdout", false, "write the raw PCM to stdout (to pipe into ffmpeg)")
	rateFlag := pflag.Uint32("rate", uint32(types.DefaultFormat.SampleRate), "the output sample rate, Hz")
	channelsFlag := pflag.Uint16("channels", uint16(types.DefaultFormat.Channels), "the amount of output channels")
	formatFlag := pflag.String("format", types.DefaultFormat.SampleFormat.String(), "the output sample format: s16le, s24le or f32le")
	durationFlag := pflag.Duration("duration", 0, "stop after this long (zero means: when interrupted)")
	dummyFlag := pflag.Bool("dummy", false, "capture a built-in sine generator instead of a real process")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if !*stdoutFlag {
		panic("expected the --stdout flag: the raw PCM goes to the standard output only, e.g.: proctap --name firefox --stdout | ffmpeg -f f32le -ar 48000 -ac 2 -i pipe:0 output.mp3")
	}

	// SIGPIPE is in the list so that a closed downstream (e.g. ffmpeg
	// finished) cancels the context instead of killing the process.
	ctx, cancelFn := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE)
	defer cancelFn()
	if *durationFlag > 0 {
		ctx, cancelFn = context.WithTimeout(ctx, *durationFlag)
		defer cancelFn()
	}

	sampleFormat, err := types.ParseSampleFormat(*formatFlag)
	assertNoError(err)
	outputFormat := types.Format{
		SampleRate:   types.SampleRate(*rateFlag),
		Channels:     types.Channel(*channelsFlag),
		SampleFormat: sampleFormat,
	}

	logger.Infof(ctx, "starting...")
	session := openSession(ctx, *dummyFlag, *pidFlag, *nameFlag, outputFormat)
	defer func() {
		assertNoError(session.Close())
	}()
	logger.Infof(ctx, "capturing %s (natively %s); ffmpeg reads the output as: -f %s -ar %d -ac %d",
		session.Target(), session.NativeFormat(),
		outputFormat.SampleFormat, outputFormat.SampleRate, outputFormat.Channels,
	)

	logger.Tracef(ctx, "session.Start")
	err = session.Start(ctx)
	logger.Tracef(ctx, "/session.Start: %v", err)
	assertNoError(err)

	wc := datacounter.NewWriterCounter(os.Stdout)
	observability.Go(ctx, func(ctx context.Context) {
		logger.Tracef(ctx, "started the traffic count printer loop")
		t := time.NewTicker(time.Second)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				stats := session.Stats()
				logger.Debugf(ctx, "written: %d; captured:%d, dropped:%d, delivered:%d", wc.Count(), stats.ChunksCaptured, stats.ChunksDropped, stats.ChunksDelivered)
			}
		}
	})

readLoop:
	for {
		chunk, err := session.Read(ctx, time.Second)
		switch {
		case err == nil:
		case errors.Is(err, types.ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			break readLoop
		default:
			logger.Errorf(ctx, "the capture ended with an error: %v", err)
			break readLoop
		}
		if chunk == nil {
			continue
		}
		if _, err := wc.Write(chunk.Data); err != nil {
			logger.Errorf(ctx, "unable to write to stdout: %v", err)
			break readLoop
		}
	}

	stats := session.Stats()
	logger.Infof(ctx, "stopped: wrote %d bytes (%d chunks; %d chunks were dropped on overruns)", wc.Count(), stats.ChunksDelivered, stats.ChunksDropped)
}

func openSession(
	ctx context.Context,
	useDummy bool,
	pid int32,
	name string,
	outputFormat types.Format,
) *proctap.Session {
	if useDummy {
		session, err := proctap.OpenWithBackend(ctx, &proctap.BackendDummy{}, types.TargetPID(types.ProcessID(os.Getpid())), outputFormat)
		assertNoError(err)
		return session
	}
	session, err := proctap.Open(ctx, types.Target{PID: types.ProcessID(pid), Name: name}, outputFormat)
	assertNoError(err)
	return session
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
