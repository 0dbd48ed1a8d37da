// Package council implements the map-reduce consensus strategy used by
// COUNCIL nodes: fan a prompt out to N voter agents, then reduce the
// surviving answers through a synthesizer agent.
package council

import (
	"context"
	"strings"
	"time"

	"github.com/gammazero/workerpool"
	log "github.com/sirupsen/logrus"

	"github.com/coreason/maco/types"
)

const (
	DefaultTimeout = 30 * time.Second

	synthesisInstruction = "Review the above responses. Identify points of agreement and disagreement. " +
		"Synthesize a single, authoritative answer that represents the best consensus."
)

// Config is the council portion of a COUNCIL node's resolved configuration.
type Config struct {
	Voters   []string
	Strategy string
}

// Result holds the synthesized consensus plus each surviving voter's answer.
type Result struct {
	Consensus       string
	IndividualVotes map[string]string
}

type Strategy struct {
	timeout time.Duration
}

// NewStrategy builds a council strategy whose voter and synthesizer calls
// share the given timeout.
func NewStrategy(timeout time.Duration) *Strategy {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Strategy{timeout: timeout}
}

// Execute runs the map phase over all voters concurrently and reduces the
// surviving votes through the synthesizer. Individual voter failures are
// swallowed; a run only fails when every voter failed or the synthesizer
// itself failed.
func (s *Strategy) Execute(ctx context.Context, prompt string, config Config, execCtx *types.ExecutionContext) (*Result, error) {
	if execCtx == nil || execCtx.UserID == "" {
		return nil, types.NewPreconditionErrorf("caller identity is required for council execution")
	}
	if execCtx.Agents == nil {
		return nil, types.NewPreconditionErrorf("agent executor is required for council execution")
	}

	log.Debugf("executing council strategy: user=%s voters=%d", execCtx.UserID, len(config.Voters))

	votes := s.mapPhase(ctx, prompt, config, execCtx.Agents)
	if len(votes) == 0 {
		return nil, types.NewAllVotersFailedErrorf("all council voters failed or timed out")
	}

	consensus, err := s.reducePhase(ctx, prompt, config, votes, execCtx.Agents)
	if err != nil {
		return nil, types.NewSynthesizerFailedError(err)
	}

	return &Result{Consensus: consensus, IndividualVotes: votes}, nil
}

func (s *Strategy) mapPhase(ctx context.Context, prompt string, config Config, agents types.AgentExecutor) map[string]string {
	type vote struct {
		content string
		err     error
	}

	results := make([]vote, len(config.Voters))
	wp := workerpool.New(max(len(config.Voters), 1))
	for i, voter := range config.Voters {
		i, voter := i, voter
		wp.Submit(func() {
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			voterConfig := types.Data{"model": voter, "agent_name": voter}
			resp, err := agents.Invoke(callCtx, prompt, voterConfig)
			if err != nil {
				results[i] = vote{err: err}
				return
			}
			results[i] = vote{content: resp.Content}
		})
	}
	wp.StopWait()

	votes := make(map[string]string, len(config.Voters))
	for i, voter := range config.Voters {
		if results[i].err != nil {
			// an absent vote, not a failed council
			log.Warnf("council voter %s failed: %v", voter, results[i].err)
			continue
		}
		votes[voter] = results[i].content
	}
	return votes
}

func (s *Strategy) reducePhase(ctx context.Context, prompt string, config Config, votes map[string]string, agents types.AgentExecutor) (string, error) {
	var sb strings.Builder
	sb.WriteString("Original Query: ")
	sb.WriteString(prompt)
	sb.WriteString("\n\n---\n\n")
	// label votes in voter order so the synthesis prompt is deterministic
	for _, voter := range config.Voters {
		answer, exists := votes[voter]
		if !exists {
			continue
		}
		sb.WriteString("Model ")
		sb.WriteString(voter)
		sb.WriteString(" Response:\n")
		sb.WriteString(answer)
		sb.WriteString("\n\n---\n\n")
	}
	sb.WriteString(synthesisInstruction)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	synthesizerConfig := types.Data{"role": "synthesizer", "model": "judge"}
	resp, err := agents.Invoke(callCtx, sb.String(), synthesizerConfig)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
