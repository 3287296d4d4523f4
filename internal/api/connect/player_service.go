package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/openfm/internal/api/wire"
	"github.com/osa030/openfm/internal/app/notification"
	"github.com/osa030/openfm/internal/app/playback"
	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/peer"
)

// PlayerServiceName is the fully-qualified name of the service.
const PlayerServiceName = "openfm.v1.PlayerService"

// Procedure paths.
const (
	GetStateProcedure       = "/" + PlayerServiceName + "/GetState"
	SelectMoodProcedure     = "/" + PlayerServiceName + "/SelectMood"
	TransportProcedure      = "/" + PlayerServiceName + "/Transport"
	SetVolumeProcedure      = "/" + PlayerServiceName + "/SetVolume"
	SetModeProcedure        = "/" + PlayerServiceName + "/SetMode"
	SetObsActiveProcedure   = "/" + PlayerServiceName + "/SetObsActive"
	ReportProgressProcedure = "/" + PlayerServiceName + "/ReportProgress"
	SubscribeProcedure      = "/" + PlayerServiceName + "/Subscribe"
)

// Messages are protobuf well-known types, so any Connect, gRPC or gRPC-Web
// client can call the service with the default codecs:
//
//	GetState        google.protobuf.Empty        -> google.protobuf.Struct (GetStateResponse)
//	SelectMood      google.protobuf.StringValue  -> google.protobuf.Empty
//	Transport       google.protobuf.StringValue  -> google.protobuf.Empty
//	SetVolume       google.protobuf.DoubleValue  -> google.protobuf.Empty
//	SetMode         google.protobuf.StringValue  -> google.protobuf.Empty
//	SetObsActive    google.protobuf.BoolValue    -> google.protobuf.Empty
//	ReportProgress  google.protobuf.Struct       -> google.protobuf.Empty
//	Subscribe       google.protobuf.ListValue    -> stream google.protobuf.Struct (notification.Message)

// GetStateResponse is a full snapshot.
type GetStateResponse struct {
	State    state.State    `json:"state"`
	Settings state.Settings `json:"settings"`
	Tokens   state.Tokens   `json:"tokens"`
}

// ReportProgressRequest is a renderer progress report.
type ReportProgressRequest struct {
	TrackID      string   `json:"trackId"`
	Seq          uint64   `json:"seq,omitempty"`
	Elapsed      *float64 `json:"elapsed,omitempty"`
	Duration     *float64 `json:"duration,omitempty"`
	ClearLoading bool     `json:"clearLoading,omitempty"`
}

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	ctl *playback.Controller
	hub *notification.Hub
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(ctl *playback.Controller, hub *notification.Hub) *PlayerService {
	return &PlayerService{ctl: ctl, hub: hub}
}

// GetState returns the current state, settings and overlay tokens.
func (s *PlayerService) GetState(
	_ context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	store := s.ctl.Store()
	st := store.State()
	msg, err := toStruct(GetStateResponse{
		State:    st,
		Settings: store.Settings(),
		Tokens:   state.BuildTokens(st),
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// SelectMood switches mood.
func (s *PlayerService) SelectMood(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[emptypb.Empty], error) {
	return s.dispatch(ctx, wire.Inbound{Type: wire.TypeSetMood, Mood: req.Msg.GetValue()})
}

// Transport runs one of play, pause, toggle, next, previous, mute or unmute.
func (s *PlayerService) Transport(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[emptypb.Empty], error) {
	cmd, err := wire.TransportCommand(req.Msg.GetValue())
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.run(ctx, cmd)
}

// SetVolume sets the volume; out of range values are clamped.
func (s *PlayerService) SetVolume(
	ctx context.Context,
	req *connect.Request[wrapperspb.DoubleValue],
) (*connect.Response[emptypb.Empty], error) {
	v := req.Msg.GetValue()
	return s.dispatch(ctx, wire.Inbound{Type: wire.TypeSetVolume, Volume: &v})
}

// SetMode switches the track source.
func (s *PlayerService) SetMode(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[emptypb.Empty], error) {
	return s.dispatch(ctx, wire.Inbound{Type: wire.TypeSetMode, Mode: req.Msg.GetValue()})
}

// SetObsActive hands the audio to OBS and back.
func (s *PlayerService) SetObsActive(
	ctx context.Context,
	req *connect.Request[wrapperspb.BoolValue],
) (*connect.Response[emptypb.Empty], error) {
	return s.run(ctx, playback.SetObsActive{Active: req.Msg.GetValue()})
}

// ReportProgress forwards a renderer progress report.
func (s *PlayerService) ReportProgress(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	var m ReportProgressRequest
	if err := fromStruct(req.Msg, &m); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return s.dispatch(ctx, wire.Inbound{
		Type:         wire.TypeProgress,
		TrackID:      m.TrackID,
		Seq:          m.Seq,
		Elapsed:      m.Elapsed,
		Duration:     m.Duration,
		ClearLoading: m.ClearLoading,
	})
}

// Subscribe streams push messages, starting with a full snapshot, until
// the caller goes away or the hub drops the client. The request lists the
// message types wanted after the snapshot; an empty list wants all.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[structpb.ListValue],
	stream *connect.ServerStream[structpb.Struct],
) error {
	wanted := make(map[string]bool, len(req.Msg.GetValues()))
	for _, v := range req.Msg.GetValues() {
		if _, ok := v.GetKind().(*structpb.Value_StringValue); !ok {
			return connect.NewError(connect.CodeInvalidArgument, errors.New("message types must be strings"))
		}
		wanted[v.GetStringValue()] = true
	}

	client := s.hub.Register(peer.TransportConnect, req.Peer().Addr)
	defer s.hub.Unregister(client.ID())

	first := true
	for {
		select {
		case msg := <-client.C():
			if !first && len(wanted) > 0 && !wanted[msg.Type] {
				continue
			}
			first = false
			out, err := toStruct(msg)
			if err != nil {
				zlog.Error().Msgf("connect: encode push failed: id=%s type=%s err=%v", client.ID(), msg.Type, err)
				continue
			}
			if err := stream.Send(out); err != nil {
				zlog.Debug().Msgf("connect: stream send failed: id=%s err=%v", client.ID(), err)
				return nil
			}
		case <-ctx.Done():
			return nil
		case <-client.Done():
			return nil
		}
	}
}

func (s *PlayerService) dispatch(ctx context.Context, in wire.Inbound) (*connect.Response[emptypb.Empty], error) {
	cmd, err := in.Command()
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.run(ctx, cmd)
}

func (s *PlayerService) run(ctx context.Context, cmd playback.Command) (*connect.Response[emptypb.Empty], error) {
	if err := s.ctl.Dispatch(ctx, cmd); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// toConnectError maps controller errors to Connect codes.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, playback.ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, playback.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, playback.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		zlog.Error().Msgf("connect: command failed: err=%v", err)
		return connect.NewError(connect.CodeInternal, err)
	}
}

// NewPlayerServiceHandler builds an HTTP handler for the service. The
// returned path is the prefix to mount it on.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, svc.GetState, opts...))
	mux.Handle(SelectMoodProcedure, connect.NewUnaryHandler(SelectMoodProcedure, svc.SelectMood, opts...))
	mux.Handle(TransportProcedure, connect.NewUnaryHandler(TransportProcedure, svc.Transport, opts...))
	mux.Handle(SetVolumeProcedure, connect.NewUnaryHandler(SetVolumeProcedure, svc.SetVolume, opts...))
	mux.Handle(SetModeProcedure, connect.NewUnaryHandler(SetModeProcedure, svc.SetMode, opts...))
	mux.Handle(SetObsActiveProcedure, connect.NewUnaryHandler(SetObsActiveProcedure, svc.SetObsActive, opts...))
	mux.Handle(ReportProgressProcedure, connect.NewUnaryHandler(ReportProgressProcedure, svc.ReportProgress, opts...))
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...))
	return "/" + PlayerServiceName + "/", mux
}

// PlayerServiceClient is a client for the service.
type PlayerServiceClient struct {
	getState       *connect.Client[emptypb.Empty, structpb.Struct]
	selectMood     *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	transport      *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	setVolume      *connect.Client[wrapperspb.DoubleValue, emptypb.Empty]
	setMode        *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	setObsActive   *connect.Client[wrapperspb.BoolValue, emptypb.Empty]
	reportProgress *connect.Client[structpb.Struct, emptypb.Empty]
	subscribe      *connect.Client[structpb.ListValue, structpb.Struct]
}

// NewPlayerServiceClient creates a client for the server at baseURL.
func NewPlayerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PlayerServiceClient {
	return &PlayerServiceClient{
		getState:       connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+GetStateProcedure, opts...),
		selectMood:     connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+SelectMoodProcedure, opts...),
		transport:      connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+TransportProcedure, opts...),
		setVolume:      connect.NewClient[wrapperspb.DoubleValue, emptypb.Empty](httpClient, baseURL+SetVolumeProcedure, opts...),
		setMode:        connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+SetModeProcedure, opts...),
		setObsActive:   connect.NewClient[wrapperspb.BoolValue, emptypb.Empty](httpClient, baseURL+SetObsActiveProcedure, opts...),
		reportProgress: connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+ReportProgressProcedure, opts...),
		subscribe:      connect.NewClient[structpb.ListValue, structpb.Struct](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

// GetState calls PlayerService.GetState.
func (c *PlayerServiceClient) GetState(ctx context.Context) (*GetStateResponse, error) {
	resp, err := c.getState.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	var out GetStateResponse
	if err := fromStruct(resp.Msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SelectMood calls PlayerService.SelectMood.
func (c *PlayerServiceClient) SelectMood(ctx context.Context, mood string) error {
	_, err := c.selectMood.CallUnary(ctx, connect.NewRequest(wrapperspb.String(mood)))
	return err
}

// Transport calls PlayerService.Transport.
func (c *PlayerServiceClient) Transport(ctx context.Context, action string) error {
	_, err := c.transport.CallUnary(ctx, connect.NewRequest(wrapperspb.String(action)))
	return err
}

// SetVolume calls PlayerService.SetVolume.
func (c *PlayerServiceClient) SetVolume(ctx context.Context, volume float64) error {
	_, err := c.setVolume.CallUnary(ctx, connect.NewRequest(wrapperspb.Double(volume)))
	return err
}

// SetMode calls PlayerService.SetMode.
func (c *PlayerServiceClient) SetMode(ctx context.Context, mode string) error {
	_, err := c.setMode.CallUnary(ctx, connect.NewRequest(wrapperspb.String(mode)))
	return err
}

// SetObsActive calls PlayerService.SetObsActive.
func (c *PlayerServiceClient) SetObsActive(ctx context.Context, active bool) error {
	_, err := c.setObsActive.CallUnary(ctx, connect.NewRequest(wrapperspb.Bool(active)))
	return err
}

// ReportProgress calls PlayerService.ReportProgress.
func (c *PlayerServiceClient) ReportProgress(ctx context.Context, req *ReportProgressRequest) error {
	msg, err := toStruct(req)
	if err != nil {
		return err
	}
	_, err = c.reportProgress.CallUnary(ctx, connect.NewRequest(msg))
	return err
}

// Subscribe opens the push stream. Close the stream when done.
func (c *PlayerServiceClient) Subscribe(ctx context.Context, types ...string) (*MessageStream, error) {
	values := make([]*structpb.Value, 0, len(types))
	for _, t := range types {
		values = append(values, structpb.NewStringValue(t))
	}
	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(&structpb.ListValue{Values: values}))
	if err != nil {
		return nil, err
	}
	return &MessageStream{stream: stream}, nil
}

// MessageStream decodes the push messages of a Subscribe call.
type MessageStream struct {
	stream *connect.ServerStreamForClient[structpb.Struct]
	msg    *notification.Message
	err    error
}

// Receive advances to the next message. It returns false when the stream
// ends or a message cannot be decoded; check Err.
func (s *MessageStream) Receive() bool {
	if s.err != nil || !s.stream.Receive() {
		return false
	}
	var msg notification.Message
	if err := fromStruct(s.stream.Msg(), &msg); err != nil {
		s.err = err
		return false
	}
	s.msg = &msg
	return true
}

// Msg returns the message read by the last successful Receive.
func (s *MessageStream) Msg() *notification.Message {
	return s.msg
}

// Err returns the first decode or transport error.
func (s *MessageStream) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.stream.Err()
}

// Close ends the stream.
func (s *MessageStream) Close() error {
	return s.stream.Close()
}
