package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisServerConfig configures a local redis-server process backing a
// RedisStore during experiments.
type RedisServerConfig struct {
	BinaryPath string
	Port       int
	WorkingDir string
	// StartTimeout bounds WaitReady, one second if zero
	StartTimeout time.Duration
}

// RedisServer is a redis-server child process
type RedisServer struct {
	config  *RedisServerConfig
	process *exec.Cmd
	client  *redis.Client
	ctx     context.Context
	cancel  context.CancelFunc

	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func NewRedisServer(config *RedisServerConfig) *RedisServer {
	if config.BinaryPath == "" {
		config.BinaryPath = "redis-server"
	}
	if config.StartTimeout == 0 {
		config.StartTimeout = time.Second
	}
	return &RedisServer{
		config: config,
		client: redis.NewClient(&redis.Options{
			Addr:        "localhost:" + strconv.Itoa(config.Port),
			DialTimeout: 10 * time.Millisecond,
		}),
		cancel: func() {},
	}
}

// Addr the server listens on
func (r *RedisServer) Addr() string {
	return "localhost:" + strconv.Itoa(r.config.Port)
}

func (r *RedisServer) create() {
	serverArgs := []string{
		"--port", strconv.Itoa(r.config.Port),
		"--bind", "127.0.0.1",
		"--dir", r.config.WorkingDir,
		"--dbfilename", "replay.rdb",
		"--save", "",
		"--appendonly", "no",
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.process = exec.CommandContext(ctx, r.config.BinaryPath, serverArgs...)

	r.ctx = ctx
	r.cancel = cancel
	r.stdout = new(bytes.Buffer)
	r.stderr = new(bytes.Buffer)
	r.process.Stdout = r.stdout
	r.process.Stderr = r.stderr
}

// Start launches the process and waits until it answers PING
func (r *RedisServer) Start() error {
	if r.ctx != nil || r.process != nil {
		return errors.New("redis server already started")
	}
	if err := os.MkdirAll(r.config.WorkingDir, os.ModePerm); err != nil {
		return err
	}
	r.create()
	if err := r.process.Start(); err != nil {
		r.ctx, r.process = nil, nil
		return fmt.Errorf("replay: starting %s: %w", r.config.BinaryPath, err)
	}
	return r.WaitReady()
}

// WaitReady polls the server until it answers or StartTimeout passes
func (r *RedisServer) WaitReady() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.StartTimeout)
	defer cancel()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := r.client.Ping(ctx).Err(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			_, stderr := r.GetLogs()
			return fmt.Errorf("replay: redis server on %s not ready: %w\n%s", r.Addr(), ctx.Err(), stderr)
		case <-ticker.C:
		}
	}
}

func (r *RedisServer) Stop() error {
	if r.ctx == nil || r.process == nil {
		r.ctx = nil
		r.cancel = func() {}
		r.process = nil
		return nil
	}
	select {
	case <-r.ctx.Done():
	default:
		r.cancel()
		err := r.process.Wait()
		if err != nil && err.Error() != "signal: killed" {
			return fmt.Errorf("replay: stopping redis server: %s: %s", err, r.process.ProcessState.String())
		}
	}

	r.ctx = nil
	r.cancel = func() {}
	r.process = nil
	return nil
}

func (r *RedisServer) Cleanup() error {
	return os.RemoveAll(r.config.WorkingDir)
}

// Terminate stops the server and removes its working directory
func (r *RedisServer) Terminate() error {
	if err := r.Stop(); err != nil {
		return err
	}
	r.client.Close()
	return r.Cleanup()
}

func (r *RedisServer) GetLogs() (string, string) {
	if r.stdout == nil || r.stderr == nil {
		return "", ""
	}
	return r.stdout.String(), r.stderr.String()
}
