// Package graph wires the router and the two pipelines into one eino graph.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/chat2vis/consts"
	"github.com/dyike/chat2vis/internal/agents"
	"github.com/dyike/chat2vis/internal/chart"
	"github.com/dyike/chat2vis/models"
)

type HistoryLoader interface {
	Messages(sessionID string) []*schema.Message
}

type Classifier interface {
	Classify(ctx context.Context, history []*schema.Message, text string) (consts.Label, error)
}

type GeneralAnswerer interface {
	Answer(ctx context.Context, history []*schema.Message, text string) (string, error)
}

type ArtifactGenerator interface {
	Generate(ctx context.Context, history []*schema.Message, text string) (*agents.Artifact, error)
}

// ChartRunner executes generated code. A nil figure means the code failed.
type ChartRunner interface {
	Run(ctx context.Context, code string) *chart.Figure
}

// Request is the graph input.
type Request struct {
	SessionID string
	Text      string
}

type turnInput struct {
	Request
	History []*schema.Message
	Label   consts.Label
}

type pipelineResult struct {
	Label   consts.Label
	Content string
	Query   string
	Code    string
	Chart   *chart.Figure
}

type Orchestrator struct {
	history  HistoryLoader
	router   Classifier
	general  GeneralAnswerer
	visual   ArtifactGenerator
	runner   ChartRunner
	debug    bool
	runnable compose.Runnable[*Request, *models.Answer]
}

type Option func(*Orchestrator)

func WithDebug(debug bool) Option {
	return func(o *Orchestrator) { o.debug = debug }
}

func NewOrchestrator(ctx context.Context, history HistoryLoader, router Classifier, general GeneralAnswerer,
	visual ArtifactGenerator, runner ChartRunner, opts ...Option) (*Orchestrator, error) {
	if history == nil || router == nil || general == nil || visual == nil || runner == nil {
		return nil, errors.New("orchestrator: all collaborators are required")
	}
	o := &Orchestrator{history: history, router: router, general: general, visual: visual, runner: runner}
	for _, opt := range opts {
		opt(o)
	}

	g := compose.NewGraph[*Request, *models.Answer]()

	_ = g.AddLambdaNode(consts.NodeLoadHistory, compose.InvokableLambda(o.loadHistory), compose.WithNodeName(consts.NodeLoadHistory))
	_ = g.AddLambdaNode(consts.NodeClassify, compose.InvokableLambda(o.classify), compose.WithNodeName(consts.NodeClassify))
	_ = g.AddLambdaNode(consts.NodeGeneral, compose.InvokableLambda(o.answerGeneral), compose.WithNodeName(consts.NodeGeneral))
	_ = g.AddLambdaNode(consts.NodeVisualisation, compose.InvokableLambda(o.visualise), compose.WithNodeName(consts.NodeVisualisation))
	_ = g.AddLambdaNode(consts.NodeRespond, compose.InvokableLambda(respond), compose.WithNodeName(consts.NodeRespond))

	_ = g.AddEdge(compose.START, consts.NodeLoadHistory)
	_ = g.AddEdge(consts.NodeLoadHistory, consts.NodeClassify)
	_ = g.AddBranch(consts.NodeClassify, compose.NewGraphBranch(route, map[string]bool{
		consts.NodeGeneral:       true,
		consts.NodeVisualisation: true,
	}))
	_ = g.AddEdge(consts.NodeGeneral, consts.NodeRespond)
	_ = g.AddEdge(consts.NodeVisualisation, consts.NodeRespond)
	_ = g.AddEdge(consts.NodeRespond, compose.END)

	r, err := g.Compile(ctx,
		compose.WithGraphName(consts.GraphName),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
	)
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}
	o.runnable = r
	return o, nil
}

// Handle answers one user turn. It reads the session history but never writes
// it; the caller records the exchange. Model transport errors are returned.
func (o *Orchestrator) Handle(ctx context.Context, text, sessionID string) (*models.Answer, error) {
	return o.runnable.Invoke(ctx, &Request{SessionID: sessionID, Text: text},
		compose.WithCallbacks(NewLoggerCallback(o.debug)))
}

func (o *Orchestrator) loadHistory(_ context.Context, req *Request) (*turnInput, error) {
	return &turnInput{Request: *req, History: o.history.Messages(req.SessionID)}, nil
}

func (o *Orchestrator) classify(ctx context.Context, in *turnInput) (*turnInput, error) {
	label, err := o.router.Classify(ctx, in.History, in.Text)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	in.Label = label
	log.Printf("[Orchestrator] session %s routed to %s", in.SessionID, label)
	return in, nil
}

// route sends anything that is not Visualisation to the general pipeline.
func route(_ context.Context, in *turnInput) (string, error) {
	if in.Label == consts.LabelVisualisation {
		return consts.NodeVisualisation, nil
	}
	return consts.NodeGeneral, nil
}

func (o *Orchestrator) answerGeneral(ctx context.Context, in *turnInput) (*pipelineResult, error) {
	content, err := o.general.Answer(ctx, in.History, in.Text)
	if err != nil {
		return nil, fmt.Errorf("general pipeline: %w", err)
	}
	return &pipelineResult{Label: consts.LabelGeneral, Content: content}, nil
}

func (o *Orchestrator) visualise(ctx context.Context, in *turnInput) (*pipelineResult, error) {
	art, err := o.visual.Generate(ctx, in.History, in.Text)
	if err != nil {
		return nil, fmt.Errorf("visualisation pipeline: %w", err)
	}
	res := &pipelineResult{Label: consts.LabelVisualisation, Query: art.Query, Code: art.Code}
	if art.Code == "" {
		return res, nil
	}
	res.Chart = o.runner.Run(ctx, art.Code)
	if res.Chart == nil {
		log.Printf("[Orchestrator] session %s: generated code produced no chart", in.SessionID)
	}
	return res, nil
}

// respond shapes the final answer. A visualisation without a chart and a
// general turn without text both collapse to the apology.
func respond(_ context.Context, res *pipelineResult) (*models.Answer, error) {
	switch {
	case res.Label == consts.LabelVisualisation && res.Chart != nil:
		return &models.Answer{Code: res.Code, Chart: res.Chart}, nil
	case res.Label != consts.LabelVisualisation && res.Content != "":
		return &models.Answer{Content: res.Content}, nil
	default:
		return &models.Answer{Content: consts.ErrorMessage}, nil
	}
}
