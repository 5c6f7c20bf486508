package foundry

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/spf13/viper"
	"gotest.tools/v3/assert"
)

const startTimeout = 5 * time.Second

// TestFoundry is a helper struct that manages a Foundry instance backed by miniredis. It will
// automatically clean up its resources at the end of the test.
type TestFoundry struct {
	testing.TB
	*Foundry

	// Base url is something like "localhost:5050". You must attach http:// or ws:// as well as a
	// resource path.
	BaseURL string
	Redis   *miniredis.Miniredis

	TickTrigger       chan time.Time
	TickSubscription  <-chan uint64
	startSubscription <-chan bool

	doCleanup func()
	startOnce *sync.Once
}

// NewTestFoundry creates a test fixture listening on an open port. A fresh miniredis is used when
// redis is nil.
func NewTestFoundry(t testing.TB, redis *miniredis.Miniredis, opts ...Option) *TestFoundry {
	if redis == nil {
		redis = miniredis.RunT(t)
	}

	port, err := findOpenPort()
	assert.NilError(t, err)

	t.Setenv("FOUNDRY_LOG_PRETTY", "true")
	t.Setenv("FOUNDRY_PORT", strconv.Itoa(port))
	t.Setenv("FOUNDRY_STORAGE", "redis")
	t.Setenv("REDIS_ADDRESS", redis.Addr())

	tickTrigger := make(chan time.Time)
	startSubscription := make(chan bool, 1)
	defaultOpts := []Option{
		WithTickChannel(tickTrigger),
		WithStartHook(func() error {
			startSubscription <- true
			close(startSubscription)
			return nil
		}),
	}

	// Default options go first so that any user supplied options overwrite the defaults.
	f, err := New(append(defaultOpts, opts...)...)
	assert.NilError(t, err)

	return &TestFoundry{
		TB:      t,
		Foundry: f,

		BaseURL: "localhost:" + strconv.Itoa(port),
		Redis:   redis,

		TickTrigger:       tickTrigger,
		TickSubscription:  f.Subscribe(),
		startSubscription: startSubscription,

		startOnce: &sync.Once{},
		doCleanup: func() {
			viper.Reset()
			f.Stop()
		},
	}
}

// StartWorld starts the foundry and registers a cleanup function that stops it at the end of the
// test. It returns once the HTTP server answers.
func (c *TestFoundry) StartWorld() {
	c.startOnce.Do(func() {
		startupError := make(chan error, 1)
		go func() {
			startupError <- c.Foundry.Start()
		}()

		select {
		case <-c.startSubscription:
		case err := <-startupError:
			c.Fatalf("foundry failed to start: %v", err)
		}
		c.Cleanup(c.doCleanup)
		c.waitForServer()
	})
}

func (c *TestFoundry) waitForServer() {
	deadline := time.Now().Add(startTimeout)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", c.BaseURL)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond) //nolint:gomnd
	}
	c.Fatalf("server at %s did not come up", c.BaseURL)
}

// DoTick executes one tick and blocks until it is complete. StartWorld is automatically called if
// it was not called before the first tick.
func (c *TestFoundry) DoTick() uint64 {
	c.StartWorld()
	c.TickTrigger <- time.Now()
	return <-c.TickSubscription
}

// Do submits an event over HTTP while ticking until the request completed.
func (c *TestFoundry) Do(method, path string, payload any) *http.Response {
	c.StartWorld()
	responses := make(chan *http.Response, 1)
	go func() {
		responses <- c.request(method, path, payload)
	}()
	for {
		select {
		case resp := <-responses:
			return resp
		default:
			c.DoTick()
		}
	}
}

func (c *TestFoundry) httpURL(path string) string {
	return fmt.Sprintf("http://%s/%s", c.BaseURL, path)
}

func (c *TestFoundry) request(method, path string, payload any) *http.Response {
	var body *bytes.Reader
	if payload == nil {
		body = bytes.NewReader(nil)
	} else {
		bz, err := json.Marshal(payload)
		assert.NilError(c, err)
		body = bytes.NewReader(bz)
	}
	req, err := http.NewRequestWithContext(
		context.Background(),
		method,
		c.httpURL(strings.Trim(path, "/")),
		body,
	)
	assert.NilError(c, err)
	req.Header.Add("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	assert.NilError(c, err)
	return resp
}

// Post executes a http POST request to this TestFoundry's server.
func (c *TestFoundry) Post(path string, payload any) *http.Response {
	return c.request(http.MethodPost, path, payload)
}

// Get executes a http GET request to this TestFoundry's server.
func (c *TestFoundry) Get(path string) *http.Response {
	return c.request(http.MethodGet, path, nil)
}

func findOpenPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
