package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/proctap/pkg/proctap"
	_ "github.com/xaionaro-go/proctap/pkg/proctap/backends"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

// An oto context cannot be reinitialized with different parameters, so
// the playback format is pinned and the session converts to it.
const (
	playbackSampleRate = 48000
	playbackChannels   = 2
)

func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	pidFlag := pflag.Int32("pid", 0, "the PID of the process to capture")
	nameFlag := pflag.String("name", "", "the executable name of the process to capture (an alternative to --pid)")
	bufferFlag := pflag.Duration("buffer", 300*time.Millisecond, "the size of the playback jitter buffer")
	durationFlag := pflag.Duration("duration", 0, "stop after this long (zero means: when interrupted)")
	dummyFlag := pflag.Bool("dummy", false, "play a built-in sine generator instead of a real process")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	ctx, cancelFn := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancelFn()
	if *durationFlag > 0 {
		ctx, cancelFn = context.WithTimeout(ctx, *durationFlag)
		defer cancelFn()
	}

	outputFormat := types.Format{
		SampleRate:   playbackSampleRate,
		Channels:     playbackChannels,
		SampleFormat: types.SampleFormatF32LE,
	}

	logger.Infof(ctx, "starting...")
	session := openSession(ctx, *dummyFlag, *pidFlag, *nameFlag, outputFormat)
	defer func() {
		assertNoError(session.Close())
	}()

	logger.Tracef(ctx, "oto.NewContext")
	otoCtx, readyCh, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   playbackSampleRate,
		ChannelCount: playbackChannels,
		Format:       oto.FormatFloat32LE,
	})
	logger.Tracef(ctx, "/oto.NewContext: %v", err)
	assertNoError(err)
	<-readyCh

	bridge := newPCMBridge(int(time.Duration(outputFormat.BytesPerSecond()) * *bufferFlag / time.Second))
	player := otoCtx.NewPlayer(bridge)
	player.Play()

	logger.Tracef(ctx, "session.Start")
	err = session.Start(ctx)
	logger.Tracef(ctx, "/session.Start: %v", err)
	assertNoError(err)
	logger.Infof(ctx, "playing %s (natively %s) with a %v jitter buffer", session.Target(), session.NativeFormat(), *bufferFlag)

	observability.Go(ctx, func(ctx context.Context) {
		logger.Tracef(ctx, "started the progress printer loop")
		t := time.NewTicker(time.Second)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				stats := session.Stats()
				logger.Debugf(ctx, "delivered: %d bytes; dropped:%d, unplayed:%d", stats.BytesDelivered, stats.ChunksDropped, player.UnplayedBufferSize())
			}
		}
	})

	for chunk := range session.Chunks(ctx) {
		if err := bridge.Write(ctx, chunk.Data); err != nil {
			logger.Debugf(ctx, "the playback feed ends: %v", err)
			break
		}
	}
	if err := session.Err(); err != nil {
		logger.Errorf(ctx, "the capture failed: %v", err)
	}

	assertNoError(bridge.Close())
	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	assertNoError(player.Close())

	stats := session.Stats()
	logger.Infof(ctx, "stopped: played %d bytes (%d chunks; %d chunks were dropped on overruns)", stats.BytesDelivered, stats.ChunksDelivered, stats.ChunksDropped)
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
