// Package main provides the control CLI entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/openfm/internal/api/connect"
	"github.com/osa030/openfm/internal/app/notification"
	"github.com/osa030/openfm/internal/app/state"
)

var (
	app    = kingpin.New("openfm-ctl", "openfm control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token (or set OPENFM_CONTROL_TOKEN env)").Envar("OPENFM_CONTROL_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Show playback status and the upcoming queue").Default()

	// mood command
	moodCmd  = app.Command("mood", "Select a mood")
	moodName = moodCmd.Arg("mood", "epic, romantic, funny, scary or sad").Required().String()

	// transport commands
	playCmd     = app.Command("play", "Start playback")
	pauseCmd    = app.Command("pause", "Pause playback")
	toggleCmd   = app.Command("toggle", "Toggle play/pause")
	nextCmd     = app.Command("next", "Skip to the next track")
	previousCmd = app.Command("previous", "Restart or go back one track").Alias("prev")
	muteCmd     = app.Command("mute", "Toggle mute")
	unmuteCmd   = app.Command("unmute", "Unmute")

	// volume command
	volumeCmd   = app.Command("volume", "Set the volume")
	volumeLevel = volumeCmd.Arg("level", "Volume between 0 and 1").Required().Float64()

	// mode command
	modeCmd  = app.Command("mode", "Switch the track source")
	modeName = modeCmd.Arg("mode", "local or spotify").Required().String()

	// obs command
	obsCmd    = app.Command("obs", "Hand the audio to OBS (on) or take it back (off)")
	obsActive = obsCmd.Arg("state", "on or off").Required().Enum("on", "off")

	// watch command
	watchCmd   = app.Command("watch", "Print push messages as they arrive")
	watchTypes = watchCmd.Flag("type", "Message types to show (repeatable)").Strings()
)

// transports are the commands forwarded as PlayerService.Transport actions.
var transports = map[string]bool{
	"play": true, "pause": true, "toggle": true, "next": true,
	"previous": true, "mute": true, "unmute": true,
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	client := apiconnect.NewPlayerServiceClient(
		http.DefaultClient,
		strings.TrimSuffix(*server, "/"),
		connect.WithInterceptors(apiconnect.NewTokenClientInterceptor(*token)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case moodCmd.FullCommand():
		err = client.SelectMood(ctx, *moodName)
		report(err, "Mood selected: "+*moodName)
	case volumeCmd.FullCommand():
		err = client.SetVolume(ctx, *volumeLevel)
		report(err, fmt.Sprintf("Volume set to %.2f", *volumeLevel))
	case modeCmd.FullCommand():
		err = client.SetMode(ctx, *modeName)
		report(err, "Mode switched to "+*modeName)
	case obsCmd.FullCommand():
		err = client.SetObsActive(ctx, *obsActive == "on")
		report(err, "OBS control: "+*obsActive)
	case watchCmd.FullCommand():
		err = watch(ctx, client, *watchTypes)
	default:
		if !transports[command] {
			app.FatalUsage("unknown command %s", command)
		}
		err = client.Transport(ctx, command)
		report(err, "OK: "+command)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func report(err error, msg string) {
	if err == nil {
		fmt.Println(msg)
	}
}

func status(ctx context.Context, client *apiconnect.PlayerServiceClient) error {
	resp, err := client.GetState(ctx)
	if err != nil {
		return err
	}
	renderStatus(os.Stdout, resp)
	return nil
}

// renderStatus prints the state summary and the upcoming queue.
func renderStatus(w io.Writer, resp *apiconnect.GetStateResponse) {
	st := resp.State

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("OPENFM STATUS")
	t.AppendRows([]table.Row{
		{"Mode", st.Mode},
		{"Mood", resp.Tokens.Mood},
		{"Status", statusColor(resp.Tokens.Status).Sprint(resp.Tokens.Status)},
		{"Track", formatTrack(st)},
		{"Progress", fmt.Sprintf("%s / %s (%.0f%%)", formatSeconds(st.Elapsed), formatSeconds(st.Duration), st.Progress*100)},
		{"Volume", fmt.Sprintf("%.0f%%", st.Volume*100)},
		{"Loading", st.IsLoading},
		{"OBS control", st.ObsActive},
		{"Crossfade", resp.Tokens.Crossfade},
		{"Queue mode", fmt.Sprintf("%s (loop: %v)", resp.Settings.PlaybackMode, resp.Settings.Loop)},
	})
	t.Render()

	if len(st.Queue) == 0 {
		fmt.Fprintln(w, "\nQueue is empty")
		return
	}

	q := table.NewWriter()
	q.SetOutputMirror(w)
	q.SetStyle(table.StyleLight)
	q.AppendHeader(table.Row{"#", "Title", "Artist", "Length"})
	for i, tr := range st.Queue {
		q.AppendRow(table.Row{i + 1, tr.Title, tr.Artist, formatSeconds(tr.Duration)})
	}
	fmt.Fprintln(w)
	q.Render()
}

func formatTrack(st state.State) string {
	if st.CurrentTrack == nil {
		return "-"
	}
	return fmt.Sprintf("%s - %s", st.CurrentTrack.Title, st.CurrentTrack.Artist)
}

func formatSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func statusColor(status string) text.Colors {
	switch status {
	case state.StatusPlaying:
		return text.Colors{text.FgGreen}
	case state.StatusMuted:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgHiBlack}
	}
}

func watch(ctx context.Context, client *apiconnect.PlayerServiceClient, types []string) error {
	stream, err := client.Subscribe(ctx, types...)
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		fmt.Println(formatMessage(stream.Msg()))
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// formatMessage renders one push message as a log line.
func formatMessage(msg *notification.Message) string {
	ts := msg.Timestamp.Local().Format(time.TimeOnly)
	switch msg.Type {
	case notification.TypeState:
		if msg.State == nil {
			break
		}
		tokens := state.BuildTokens(*msg.State)
		return fmt.Sprintf("%s #%d state   %s | %s | %s | %s/%s",
			ts, msg.Seq, tokens.Mood, tokens.Status, formatTrack(*msg.State),
			formatSeconds(msg.State.Elapsed), formatSeconds(msg.State.Duration))
	case notification.TypeSettings:
		if msg.Settings == nil {
			break
		}
		return fmt.Sprintf("%s #%d settings crossfade=%dms mode=%s loop=%v",
			ts, msg.Seq, msg.Settings.CrossfadeDuration, msg.Settings.PlaybackMode, msg.Settings.Loop)
	case notification.TypeLibrary:
		return fmt.Sprintf("%s #%d library moods=%d tracks=%d root=%s",
			ts, msg.Seq, len(msg.Library), msg.Library.TrackCount(), msg.Root)
	case notification.TypeCrossfade:
		if msg.Crossfade == nil {
			break
		}
		c := msg.Crossfade
		return fmt.Sprintf("%s #%d crossfade %s -> %s step=%d/%d out=%.2f in=%.2f",
			ts, msg.Seq, c.FromTrackID, c.ToTrackID, c.Step, c.Steps, c.FadeOut, c.FadeIn)
	}
	return fmt.Sprintf("%s #%d %s", ts, msg.Seq, msg.Type)
}
