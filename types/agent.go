package types

import (
	"fmt"
	"time"
)

type AgentConfig struct {
	Episodes     int
	Horizon      int
	Policy       Policy
	Environment  GoalEnv
	ResetOptions ResetOptions
}

// RL Agent configured with the corresponding
// policy and environment
type Agent struct {
	config      *AgentConfig
	policy      Policy
	environment GoalEnv
}

// Instantiates a new Agent
func NewAgent(config *AgentConfig) *Agent {
	return &Agent{
		config:      config,
		policy:      config.Policy,
		environment: config.Environment,
	}
}

// RunEpisode runs a single episode and stores the resulting trace in the context.
// The episode stops early when the context is done or the policy gives up.
func (a *Agent) RunEpisode(eCtx *EpisodeContext) {
	start := time.Now()
	obs, err := a.environment.Reset(eCtx.Context, a.config.ResetOptions)
	eCtx.Report.AddTimeEntry(time.Since(start), "reset_time", "agent.RunEpisode")
	if err != nil {
		eCtx.SetError(fmt.Errorf("reset: %w", err))
		return
	}
	space := a.environment.ActionSpace()

	for i := 0; i < a.config.Horizon; i++ {
		select {
		case <-eCtx.Context.Done():
			return
		default:
		}
		eCtx.Report.setEpisodeStep(i)

		action, ok := a.policy.NextAction(i, obs, space)
		if !ok {
			eCtx.Report.AddLog(fmt.Sprintf("no action at step %d", i), "policy_stop")
			eCtx.SetToPrintReport(true)
			break
		}
		nextObs, reward, done, info, err := a.environment.Step(action)
		if err != nil {
			eCtx.SetError(fmt.Errorf("step %d: %w", i, err))
			return
		}
		a.policy.Update(i, obs, action, reward, nextObs)

		eCtx.Trace.Append(i, obs, action, reward, nextObs, info)
		eCtx.Timesteps++
		obs = nextObs
		if done {
			eCtx.Report.AddLog(fmt.Sprintf("done at step %d, success %v", i, info.IsSuccess), "env_done")
			break
		}
	}
	a.policy.UpdateIteration(eCtx.Episode, eCtx.Trace)
}
