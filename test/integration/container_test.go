//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	defaultPostgresImage = "postgres:16-alpine"
	postgresReadyTimeout = 45 * time.Second
)

// startPostgresContainer boots a disposable postgres and returns its DSN and a
// stop func. POSTGRES_IMAGE overrides the image.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	image := os.Getenv("POSTGRES_IMAGE")
	if image == "" {
		image = defaultPostgresImage
	}

	id, err := docker(ctx, "run", "-d", "--rm",
		"--label", "autoshine.integration=1",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=autoshine",
		"-e", "POSTGRES_PASSWORD=autoshine",
		"-e", "POSTGRES_DB=autoshine_it",
		image,
	)
	if err != nil {
		return "", nil, err
	}
	stop := func() {
		// --rm removes the container once stopped.
		_, _ = docker(context.Background(), "stop", "-t", "2", id)
	}

	hostPort, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		stop()
		return "", nil, err
	}
	// docker port may print one line per address family.
	hostPort = strings.SplitN(hostPort, "\n", 2)[0]
	if _, _, err := net.SplitHostPort(hostPort); err != nil {
		stop()
		return "", nil, fmt.Errorf("unexpected docker port output %q: %w", hostPort, err)
	}

	dsn := fmt.Sprintf("postgres://autoshine:autoshine@%s/autoshine_it?sslmode=disable", hostPort)
	if err := awaitPostgres(ctx, dsn); err != nil {
		stop()
		return "", nil, err
	}
	return dsn, stop, nil
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// awaitPostgres retries a plain connection plus SELECT 1. The postgres image
// restarts once after initdb, so a single early success is not enough.
func awaitPostgres(ctx context.Context, dsn string) error {
	ctx, cancel := context.WithTimeout(ctx, postgresReadyTimeout)
	defer cancel()

	var lastErr error
	streak := 0
	for {
		lastErr = pingOnce(ctx, dsn)
		if lastErr == nil {
			streak++
			if streak == 2 {
				return nil
			}
		} else {
			streak = 0
		}
		select {
		case <-ctx.Done():
			return errors.Join(fmt.Errorf("postgres not ready after %s", postgresReadyTimeout), lastErr)
		case <-time.After(300 * time.Millisecond):
		}
	}
}

func pingOnce(ctx context.Context, dsn string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	var one int
	return conn.QueryRow(ctx, "SELECT 1").Scan(&one)
}
