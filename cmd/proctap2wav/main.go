package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/proctap/pkg/proctap"
	_ "github.com/xaionaro-go/proctap/pkg/proctap/backends"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

// WAV wants integer PCM, and 16 bits is what every player accepts.
const wavBitDepth = 16

func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	pidFlag := pflag.Int32("pid", 0, "the PID of the process to capture")
	nameFlag := pflag.String("name", "", "the executable name of the process to capture (an alternative to --pid)")
	outputFlag := pflag.String("output", "output.wav", "the path of the WAV file to write")
	rateFlag := pflag.Uint32("rate", uint32(types.DefaultFormat.SampleRate), "the sample rate of the WAV file, Hz")
	channelsFlag := pflag.Uint16("channels", uint16(types.DefaultFormat.Channels), "the amount of channels in the WAV file")
	durationFlag := pflag.Duration("duration", 0, "stop after this long (zero means: on Enter or when interrupted)")
	dummyFlag := pflag.Bool("dummy", false, "record a built-in sine generator instead of a real process")
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
		SampleRate:   types.SampleRate(*rateFlag),
		Channels:     types.Channel(*channelsFlag),
		SampleFormat: types.SampleFormatS16LE,
	}

	logger.Infof(ctx, "starting...")
	file, err := os.Create(*outputFlag)
	assertNoError(err)
	defer file.Close()
	enc := wav.NewEncoder(file, int(outputFormat.SampleRate), wavBitDepth, int(outputFormat.Channels), 1)

	session := openSession(ctx, *dummyFlag, *pidFlag, *nameFlag, outputFormat)
	defer func() {
		assertNoError(session.Close())
	}()

	logger.Tracef(ctx, "session.Start")
	err = session.Start(ctx)
	logger.Tracef(ctx, "/session.Start: %v", err)
	assertNoError(err)
	logger.Infof(ctx, "recording %s into %s; press Enter (or send SIGINT) to stop", session.Target(), *outputFlag)

	observability.Go(ctx, func(ctx context.Context) {
		_, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			// stdin is not interactive (e.g. redirected and closed);
			// signals and --duration still stop the recording
			logger.Debugf(ctx, "not waiting for Enter: %v", err)
			return
		}
		cancelFn()
	})
	observability.Go(ctx, func(ctx context.Context) {
		logger.Tracef(ctx, "started the progress printer loop")
		t := time.NewTicker(time.Second)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				stats := session.Stats()
				logger.Debugf(ctx, "recorded: %d bytes; captured:%d, dropped:%d", stats.BytesDelivered, stats.ChunksCaptured, stats.ChunksDropped)
			}
		}
	})

	var framesWritten uint64
	for chunk := range session.Chunks(ctx) {
		assertNoError(enc.Write(intBufferS16LE(chunk.Data, outputFormat)))
		framesWritten += uint64(chunk.Frames())
	}
	if err := session.Err(); err != nil {
		logger.Errorf(ctx, "the capture failed: %v", err)
	}

	// Close rewrites the RIFF header, so the file stays playable even
	// after a mid-recording failure.
	assertNoError(enc.Close())
	stats := session.Stats()
	logger.Infof(ctx, "wrote %s: %v of %s (%d chunks; %d chunks were dropped on overruns)",
		*outputFlag,
		time.Duration(framesWritten)*time.Second/time.Duration(outputFormat.SampleRate),
		outputFormat,
		stats.ChunksDelivered,
		stats.ChunksDropped,
	)
}

// intBufferS16LE converts interleaved s16le bytes into the sample slice
// form the WAV encoder consumes.
func intBufferS16LE(data []byte, format types.Format) *audio.IntBuffer {
	samples := make([]int, len(data)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return &audio.IntBuffer{
		Data: samples,
		Format: &audio.Format{
			NumChannels: int(format.Channels),
			SampleRate:  int(format.SampleRate),
		},
	}
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
