package pulseaudio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

// sinkInputTap describes where the audio of one process ends up: the
// playback stream ("sink input") of the process and the monitor source
// of the sink the stream is connected to.
type sinkInputTap struct {
	SinkInputIndex    uint32
	SinkInputName     string
	MonitorSourceName string
	SinkSampleSpec    proto.SampleSpec
	SinkChannelMap    proto.ChannelMap
}

// findSinkInputByPID locates the playback stream of the given process on
// the PulseAudio server and resolves the monitor source to record it
// from. It uses a short-lived dedicated connection.
func findSinkInputByPID(
	ctx context.Context,
	server string,
	pid types.ProcessID,
) (_ *sinkInputTap, _err error) {
	logger.Tracef(ctx, "findSinkInputByPID(%d)", pid)
	defer func() { logger.Tracef(ctx, "/findSinkInputByPID(%d): %v", pid, _err) }()

	client, conn, err := proto.Connect(server)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to connect to PulseAudio: %v", types.ErrBackendUnavailable, err)
	}
	defer conn.Close()

	var authReply proto.AuthReply
	err = client.Request(
		&proto.Auth{
			Version: client.Version(),
			Cookie:  loadAuthCookie(ctx),
		},
		&authReply,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: PulseAudio rejected the authentication: %v", types.ErrPermissionDenied, err)
	}
	client.SetVersion(authReply.Version)

	err = client.Request(
		&proto.SetClientName{Props: proto.PropList{
			"application.name": proto.PropListString("proctap"),
		}},
		&proto.SetClientNameReply{},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to set the client name: %w", err)
	}

	var sinkInputs proto.GetSinkInputInfoListReply
	err = client.Request(&proto.GetSinkInputInfoList{}, &sinkInputs)
	if err != nil {
		return nil, fmt.Errorf("unable to list the playback streams: %w", err)
	}

	pidValue := strconv.FormatInt(int64(pid), 10)
	for _, sinkInput := range sinkInputs {
		entry, ok := sinkInput.Properties["application.process.id"]
		if !ok {
			continue
		}
		if entry.String() != pidValue {
			continue
		}

		var sink proto.GetSinkInfoReply
		err = client.Request(&proto.GetSinkInfo{SinkIndex: sinkInput.SinkIndex}, &sink)
		if err != nil {
			return nil, fmt.Errorf("unable to get the info of sink %d: %w", sinkInput.SinkIndex, err)
		}

		logger.Debugf(ctx,
			"PID %d plays '%s' to sink '%s', its monitor source is '%s'",
			pid, sinkInput.Name, sink.SinkName, sink.MonitorSourceName,
		)
		return &sinkInputTap{
			SinkInputIndex:    sinkInput.SinkInputIndex,
			SinkInputName:     sinkInput.Name,
			MonitorSourceName: sink.MonitorSourceName,
			SinkSampleSpec:    sink.SampleSpec,
			SinkChannelMap:    sink.ChannelMap,
		}, nil
	}

	return nil, fmt.Errorf(
		"%w: PID %d has no playback stream on the PulseAudio server",
		types.ErrProcessNotFound, pid,
	)
}

// loadAuthCookie reads the PulseAudio authentication cookie the same way
// the native client library does. A missing cookie is not fatal: local
// connections of the same user are authenticated by the socket itself.
func loadAuthCookie(ctx context.Context) []byte {
	home, err := os.UserHomeDir()
	if err != nil {
		logger.Debugf(ctx, "unable to get the home directory: %v", err)
		return nil
	}
	for _, path := range []string{
		filepath.Join(home, ".config", "pulse", "cookie"),
		filepath.Join(home, ".pulse-cookie"),
	} {
		cookie, err := os.ReadFile(path)
		if err == nil {
			return cookie
		}
	}
	logger.Debugf(ctx, "no PulseAudio auth cookie found, proceeding without one")
	return nil
}
