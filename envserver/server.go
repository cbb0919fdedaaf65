// Package envserver exposes a goal environment over HTTP so that agents in
// other processes can drive it.
package envserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zeu5/robot-goal-env/robot"
	"github.com/zeu5/robot-goal-env/types"
)

type StepRequest struct {
	Action []float64 `json:"action"`
}

type StepResponse struct {
	Observation *types.Observation `json:"observation"`
	Reward      float64            `json:"reward"`
	Done        bool               `json:"done"`
	Info        types.Info         `json:"info"`
}

type SeedRequest struct {
	Seed *uint64 `json:"seed"`
}

type SeedResponse struct {
	Seeds []uint64 `json:"seeds"`
}

type SpacesResponse struct {
	Action      *types.Box       `json:"action_space"`
	Observation *types.DictSpace `json:"observation_space"`
}

type RewardRequest struct {
	AchievedGoal []float64  `json:"achieved_goal"`
	DesiredGoal  []float64  `json:"desired_goal"`
	Info         types.Info `json:"info"`
}

type RewardResponse struct {
	Reward float64 `json:"reward"`
}

// Server serializes all requests onto one environment, which is not safe
// for concurrent use.
type Server struct {
	Addr   string
	ctx    context.Context
	server *http.Server
	logger *slog.Logger

	lock *sync.Mutex
	env  types.GoalEnv
}

func NewServer(ctx context.Context, addr string, env types.GoalEnv, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Addr:   addr,
		ctx:    ctx,
		logger: logger,
		lock:   new(sync.Mutex),
		env:    env,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/reset", s.handleReset)
	r.POST("/step", s.handleStep)
	r.POST("/seed", s.handleSeed)
	r.POST("/close", s.handleClose)
	r.POST("/reward", s.handleReward)
	r.GET("/render", s.handleRender)
	r.GET("/spaces", s.handleSpaces)
	r.GET("/metadata", s.handleMetadata)
	r.GET("/health", dummyHandler)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler is the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves in the background until the context is done.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("environment server stopped", "addr", s.Addr, "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}()
}

// Run serves until the context is done.
func (s *Server) Run() error {
	s.Start()
	<-s.ctx.Done()
	return nil
}

func dummyHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, robot.ErrActionShape), errors.Is(err, robot.ErrUnsupportedRenderMode):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	s.logger.Warn("environment request failed", "op", op, "status", status, "err", err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleReset(c *gin.Context) {
	opts := types.ResetOptions{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
			return
		}
	}
	s.lock.Lock()
	obs, err := s.env.Reset(c.Request.Context(), opts)
	s.lock.Unlock()
	if err != nil {
		s.fail(c, "reset", err)
		return
	}
	c.JSON(http.StatusOK, obs)
}

func (s *Server) handleStep(c *gin.Context) {
	req := StepRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
		return
	}
	s.lock.Lock()
	obs, reward, done, info, err := s.env.Step(req.Action)
	s.lock.Unlock()
	if err != nil {
		s.fail(c, "step", err)
		return
	}
	c.JSON(http.StatusOK, StepResponse{
		Observation: obs,
		Reward:      reward,
		Done:        done,
		Info:        info,
	})
}

func (s *Server) handleSeed(c *gin.Context) {
	req := SeedRequest{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
			return
		}
	}
	s.lock.Lock()
	seeds := s.env.Seed(req.Seed)
	s.lock.Unlock()
	c.JSON(http.StatusOK, SeedResponse{Seeds: seeds})
}

func (s *Server) handleClose(c *gin.Context) {
	s.lock.Lock()
	err := s.env.Close()
	s.lock.Unlock()
	if err != nil {
		s.fail(c, "close", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (s *Server) handleReward(c *gin.Context) {
	req := RewardRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	dim := len(req.DesiredGoal)
	if goals, ok := s.env.ObservationSpace().Spaces[types.KeyAchievedGoal]; ok {
		dim = goals.Shape()
	}
	if len(req.AchievedGoal) != dim || len(req.DesiredGoal) != dim {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("goals of length %d and %d, want %d",
			len(req.AchievedGoal), len(req.DesiredGoal), dim)})
		return
	}
	c.JSON(http.StatusOK, RewardResponse{Reward: s.env.ComputeReward(req.AchievedGoal, req.DesiredGoal, req.Info)})
}

func (s *Server) handleRender(c *gin.Context) {
	mode := c.DefaultQuery("mode", types.RenderRGBArray)
	s.lock.Lock()
	img, err := s.env.Render(mode)
	s.lock.Unlock()
	if err != nil {
		s.fail(c, "render", err)
		return
	}
	if img == nil {
		c.Status(http.StatusNoContent)
		return
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		s.fail(c, "render", err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) handleSpaces(c *gin.Context) {
	s.lock.Lock()
	resp := SpacesResponse{
		Action:      s.env.ActionSpace(),
		Observation: s.env.ObservationSpace(),
	}
	s.lock.Unlock()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMetadata(c *gin.Context) {
	s.lock.Lock()
	md := s.env.Metadata()
	s.lock.Unlock()
	c.JSON(http.StatusOK, md)
}
