// Package main provides the Spotify authorization helper. It runs the
// authorization code flow once and prints the refresh token the server needs
// for the spotify track source.
package main

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/openfm/internal/infra/spotify"
)

var (
	app          = kingpin.New("openfm-auth", "Spotify authorization helper for openfm")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
	timeout      = app.Flag("timeout", "How long to wait for the browser").Default("5m").Duration()
	envFile      = app.Flag("env-file", "Also store the refresh token in this dotenv file").String()
)

var completeTmpl = template.Must(template.New("complete").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>openfm - {{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #1DB954 0%, #191414 100%);
            color: white;
        }
        .container {
            text-align: center;
            padding: 40px;
            background: rgba(0, 0, 0, 0.5);
            border-radius: 16px;
        }
        p { opacity: 0.8; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <p>{{.Detail}}</p>
    </div>
</body>
</html>
`))

type page struct {
	Title  string
	Detail string
}

// callback receives the redirect from Spotify and hands the token to the
// waiting main goroutine.
type callback struct {
	auth  *spotifyauth.Authenticator
	state string
	ch    chan *oauth2.Token
}

func (c *callback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if st := r.FormValue("state"); st != c.state {
		zlog.Warn().Msgf("auth: state mismatch: %q", st)
		render(w, http.StatusForbidden, page{Title: "State mismatch", Detail: "Restart openfm-auth and try again."})
		return
	}

	token, err := c.auth.Token(r.Context(), c.state, r)
	if err != nil {
		zlog.Error().Err(err).Msg("auth: token exchange failed")
		render(w, http.StatusForbidden, page{Title: "Authorization failed", Detail: err.Error()})
		return
	}

	render(w, http.StatusOK, page{Title: "Authorization complete", Detail: "You can close this window and return to the terminal."})
	select {
	case c.ch <- token:
	default:
	}
}

func render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := completeTmpl.Execute(w, p); err != nil {
		zlog.Debug().Err(err).Msg("auth: render page")
	}
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))
	zlog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()

	if err := run(); err != nil {
		zlog.Error().Err(err).Msg("auth: failed")
		os.Exit(1)
	}
}

func run() error {
	state := "openfm-" + uuid.NewString()

	cb := &callback{
		auth: spotifyauth.New(
			spotifyauth.WithRedirectURL(fmt.Sprintf("http://127.0.0.1:%d/callback", *port)),
			spotifyauth.WithClientID(*clientID),
			spotifyauth.WithClientSecret(*clientSecret),
			spotifyauth.WithScopes(spotify.Scopes...),
		),
		state: state,
		ch:    make(chan *oauth2.Token, 1),
	}

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/callback", cb)

	lis, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", *port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", *port, err)
	}
	server := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(lis); err != nil && err != http.ErrServerClosed {
			zlog.Error().Err(err).Msg("auth: callback server stopped")
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			zlog.Warn().Err(err).Msg("auth: failed to shutdown callback server")
		}
	}()

	fmt.Println("Please visit the following URL to authorize openfm:")
	fmt.Println()
	fmt.Println(cb.auth.AuthURL(state))
	fmt.Println()
	zlog.Info().Msgf("auth: waiting up to %v for authorization", *timeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var token *oauth2.Token
	select {
	case token = <-cb.ch:
	case <-ctx.Done():
		return fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("spotify returned no refresh token")
	}

	fmt.Println()
	fmt.Println("=== Authorization Successful ===")
	fmt.Println()
	fmt.Println("Add this to your config.yaml:")
	fmt.Println()
	fmt.Println("spotify:")
	fmt.Printf("  refresh_token: %q\n", token.RefreshToken)
	fmt.Println()
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=%q\n", token.RefreshToken)

	if *envFile != "" {
		if err := storeToken(*envFile, token.RefreshToken); err != nil {
			return err
		}
		zlog.Info().Msgf("auth: refresh token written to %s", *envFile)
	}
	return nil
}

// storeToken merges SPOTIFY_REFRESH_TOKEN into the dotenv file, keeping the
// other entries.
func storeToken(path, refreshToken string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		env = map[string]string{}
	}
	env["SPOTIFY_REFRESH_TOKEN"] = refreshToken
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
