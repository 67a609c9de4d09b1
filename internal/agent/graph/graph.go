// Package graph assembles the conversation graph: orchestrator, domain
// routers, terminal handlers and the branching between them.
package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/riskpilot-core/server/internal/agent/graph/nodes"
	"github.com/riskpilot-core/server/internal/agent/model"
)

// Config bounds graph execution.
type Config struct {
	// MaxRunSteps caps node transitions per turn. The longest legal path
	// is orchestrator, router, handler; the cap is generous headroom, not
	// an expected depth.
	MaxRunSteps int
}

func (c Config) maxRunSteps() int {
	if c.MaxRunSteps <= 0 {
		return 16
	}
	return c.MaxRunSteps
}

// Builder wires node handlers into a compiled runnable.
type Builder struct {
	deps *nodes.Deps
	cfg  Config
	g    *compose.Graph[*model.TurnState, *model.TurnState]
}

func NewBuilder(deps *nodes.Deps, cfg Config) *Builder {
	return &Builder{
		deps: deps,
		cfg:  cfg,
		g:    compose.NewGraph[*model.TurnState, *model.TurnState](),
	}
}

// Build compiles the graph. Every handler is wrapped in the blanket
// recovery policy, so the compiled runnable always reaches a terminal node.
func (b *Builder) Build(ctx context.Context) (compose.Runnable[*model.TurnState, *model.TurnState], error) {
	if err := b.addNodes(); err != nil {
		return nil, fmt.Errorf("add nodes: %w", err)
	}
	if err := b.addEdges(); err != nil {
		return nil, fmt.Errorf("add edges: %w", err)
	}
	if err := b.addBranches(); err != nil {
		return nil, fmt.Errorf("add branches: %w", err)
	}
	r, err := b.g.Compile(ctx, compose.WithMaxRunSteps(b.cfg.maxRunSteps()))
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}
	return r, nil
}

func (b *Builder) addNodes() error {
	d := b.deps
	handlers := map[string]func(context.Context, *model.TurnState) error{
		nodes.NodeOrchestrator:     d.Orchestrator,
		nodes.NodeClarify:          d.Clarify,
		nodes.NodeRiskRouter:       d.RiskRouter,
		nodes.NodeRiskGeneration:   d.RiskGeneration,
		nodes.NodeRiskRegister:     d.RiskRegister,
		nodes.NodeMatrix:           d.MatrixRecommendation,
		nodes.NodeRiskKnowledge:    d.RiskKnowledge,
		nodes.NodeControlRouter:    d.ControlRouter,
		nodes.NodeGenerateControl:  d.GenerateControl,
		nodes.NodeControlLibrary:   d.ControlLibrary,
		nodes.NodeControlKnowledge: d.ControlKnowledge,
		nodes.NodeKnowledge:        d.Knowledge,
		nodes.NodeAudit:            d.AuditFacilitator,
	}
	for name, fn := range handlers {
		if err := b.g.AddLambdaNode(name, compose.InvokableLambda(nodes.Safe(name, fn))); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeOrchestrator},
		{nodes.NodeClarify, compose.END},
		{nodes.NodeRiskGeneration, compose.END},
		{nodes.NodeRiskRegister, compose.END},
		{nodes.NodeMatrix, compose.END},
		{nodes.NodeRiskKnowledge, compose.END},
		{nodes.NodeGenerateControl, compose.END},
		{nodes.NodeControlLibrary, compose.END},
		{nodes.NodeControlKnowledge, compose.END},
		{nodes.NodeKnowledge, compose.END},
		{nodes.NodeAudit, compose.END},
	}
	for _, e := range edges {
		if err := b.g.AddEdge(e[0], e[1]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) addBranches() error {
	domainBranch := compose.NewGraphBranch(
		func(_ context.Context, s *model.TurnState) (string, error) {
			switch s.Route.Domain {
			case model.DomainRisk:
				return nodes.NodeRiskRouter, nil
			case model.DomainControl:
				return nodes.NodeControlRouter, nil
			case model.DomainAudit:
				return nodes.NodeAudit, nil
			case model.DomainKnowledge:
				return nodes.NodeKnowledge, nil
			default:
				return nodes.NodeClarify, nil
			}
		},
		map[string]bool{
			nodes.NodeRiskRouter:    true,
			nodes.NodeControlRouter: true,
			nodes.NodeAudit:         true,
			nodes.NodeKnowledge:     true,
			nodes.NodeClarify:       true,
		})
	if err := b.g.AddBranch(nodes.NodeOrchestrator, domainBranch); err != nil {
		return err
	}

	riskBranch := compose.NewGraphBranch(
		func(_ context.Context, s *model.TurnState) (string, error) {
			switch s.Route.Target {
			case model.TargetRiskGeneration:
				return nodes.NodeRiskGeneration, nil
			case model.TargetRiskRegister:
				return nodes.NodeRiskRegister, nil
			case model.TargetMatrixRecommendation:
				return nodes.NodeMatrix, nil
			default:
				return nodes.NodeRiskKnowledge, nil
			}
		},
		map[string]bool{
			nodes.NodeRiskGeneration: true,
			nodes.NodeRiskRegister:   true,
			nodes.NodeMatrix:         true,
			nodes.NodeRiskKnowledge:  true,
		})
	if err := b.g.AddBranch(nodes.NodeRiskRouter, riskBranch); err != nil {
		return err
	}

	controlBranch := compose.NewGraphBranch(
		func(_ context.Context, s *model.TurnState) (string, error) {
			if s.Route.Domain == model.DomainClarify {
				return nodes.NodeClarify, nil
			}
			switch s.Route.Target {
			case model.TargetGenerateControl:
				return nodes.NodeGenerateControl, nil
			case model.TargetControlLibrary:
				return nodes.NodeControlLibrary, nil
			default:
				return nodes.NodeControlKnowledge, nil
			}
		},
		map[string]bool{
			nodes.NodeClarify:          true,
			nodes.NodeGenerateControl:  true,
			nodes.NodeControlLibrary:   true,
			nodes.NodeControlKnowledge: true,
		})
	return b.g.AddBranch(nodes.NodeControlRouter, controlBranch)
}
