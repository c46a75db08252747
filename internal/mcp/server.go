// Package mcp exposes the debate engine as MCP tools. The server is meant
// for trusted local clients over stdio: caller identity is taken from the
// tool arguments.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/engine"
	"github.com/hazyhaar/debatehub/internal/service"
	"github.com/hazyhaar/debatehub/pkg/kit"
)

// NewServer creates an MCPServer with the debate tools registered.
func NewServer(eps *service.Endpoints, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"debatehub",
		version,
		server.WithToolCapabilities(true),
	)

	registerSubmitArgument(srv, eps)
	registerCastVote(srv, eps)
	registerJoinDebate(srv, eps)
	registerCurrentRound(srv, eps)
	registerResolveWinner(srv, eps)
	registerGetDebate(srv, eps)
	registerLeaderboard(srv, eps)

	return srv
}

func schema(props map[string]any, required ...string) json.RawMessage {
	if required == nil {
		required = []string{}
	}
	b, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	})
	return b
}

func str(desc string) map[string]string { return map[string]string{"type": "string", "description": desc} }

func integer(desc string) map[string]string {
	return map[string]string{"type": "integer", "description": desc}
}

var errMissing = errors.New("missing required argument")

func required(args map[string]any, keys ...string) error {
	for _, k := range keys {
		if stringArg(args, k) == "" {
			return fmt.Errorf("%w: %s", errMissing, k)
		}
	}
	return nil
}

// --- submit_argument ---

func registerSubmitArgument(srv *server.MCPServer, eps *service.Endpoints) {
	tool := mcp.NewToolWithRawSchema("submit_argument",
		"Submit the caller's argument for the open round of a debate. Each side argues once per round.",
		schema(map[string]any{
			"debate_id": str("Debate ID"),
			"user_id":   str("Participant user ID"),
			"content":   str("Argument text"),
			"round":     integer("Round number (1-3); must equal the current round"),
		}, "debate_id", "user_id", "content", "round"))

	kit.RegisterMCPTool(srv, tool, eps.SubmitArgument, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		if err := required(args, "debate_id", "user_id", "content"); err != nil {
			return nil, err
		}
		in := engine.SubmitArgumentInput{
			DebateID: stringArg(args, "debate_id"),
			UserID:   stringArg(args, "user_id"),
			Content:  stringArg(args, "content"),
			Round:    intArg(args, "round", 0),
		}
		return &kit.MCPDecodeResult{Request: in, UserID: in.UserID}, nil
	})
}

// --- cast_vote ---

func registerCastVote(srv *server.MCPServer, eps *service.Endpoints) {
	tool := mcp.NewToolWithRawSchema("cast_vote",
		"Vote for side A or B of an active debate. One vote per user per debate; participants cannot vote.",
		schema(map[string]any{
			"debate_id": str("Debate ID"),
			"voter_id":  str("Voter user ID"),
			"side":      map[string]any{"type": "string", "enum": []string{"A", "B"}},
		}, "debate_id", "voter_id", "side"))

	kit.RegisterMCPTool(srv, tool, eps.CastVote, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		if err := required(args, "debate_id", "voter_id", "side"); err != nil {
			return nil, err
		}
		in := engine.CastVoteInput{
			DebateID: stringArg(args, "debate_id"),
			VoterID:  stringArg(args, "voter_id"),
			Side:     db.Side(stringArg(args, "side")),
		}
		return &kit.MCPDecodeResult{Request: in, UserID: in.VoterID}, nil
	})
}

// --- join_debate ---

func registerJoinDebate(srv *server.MCPServer, eps *service.Endpoints) {
	tool := mcp.NewToolWithRawSchema("join_debate", "Take an empty side of an upcoming or active debate",
		schema(map[string]any{
			"debate_id": str("Debate ID"),
			"user_id":   str("User ID"),
			"side":      map[string]any{"type": "string", "enum": []string{"A", "B"}},
		}, "debate_id", "user_id", "side"))

	kit.RegisterMCPTool(srv, tool, eps.JoinDebate, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		if err := required(args, "debate_id", "user_id", "side"); err != nil {
			return nil, err
		}
		r := service.JoinRequest{
			DebateID: stringArg(args, "debate_id"),
			UserID:   stringArg(args, "user_id"),
			Side:     db.Side(stringArg(args, "side")),
		}
		return &kit.MCPDecodeResult{Request: r, UserID: r.UserID}, nil
	})
}

// --- current_round ---

func registerCurrentRound(srv *server.MCPServer, eps *service.Endpoints) {
	tool := mcp.NewToolWithRawSchema("current_round", "Get the open round (1-3) of a debate",
		schema(map[string]any{"debate_id": str("Debate ID")}, "debate_id"))
	kit.RegisterMCPTool(srv, tool, eps.CurrentRound, decodeDebateID)
}

// --- resolve_winner ---

func registerResolveWinner(srv *server.MCPServer, eps *service.Endpoints) {
	tool := mcp.NewToolWithRawSchema("resolve_winner",
		"Complete a debate whose voting period has ended and record the winner. Idempotent.",
		schema(map[string]any{"debate_id": str("Debate ID")}, "debate_id"))
	kit.RegisterMCPTool(srv, tool, eps.ResolveWinner, decodeDebateID)
}

// --- get_debate ---

func registerGetDebate(srv *server.MCPServer, eps *service.Endpoints) {
	tool := mcp.NewToolWithRawSchema("get_debate", "Get a debate with its arguments and current round",
		schema(map[string]any{"debate_id": str("Debate ID")}, "debate_id"))
	kit.RegisterMCPTool(srv, tool, eps.GetDebate, decodeDebateID)
}

func decodeDebateID(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	args := req.GetArguments()
	if err := required(args, "debate_id"); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: service.DebateRequest{DebateID: stringArg(args, "debate_id")}}, nil
}

// --- leaderboard ---

func registerLeaderboard(srv *server.MCPServer, eps *service.Endpoints) {
	tool := mcp.NewToolWithRawSchema("leaderboard", "Top users by credibility",
		schema(map[string]any{"limit": integer("Max results (default 50)")}))

	kit.RegisterMCPTool(srv, tool, publicUsers(eps.Leaderboard), func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: service.LeaderboardRequest{
			Limit: intArg(req.GetArguments(), "limit", service.LeaderboardLimit),
		}}, nil
	})
}

// publicUsers strips emails from a user list result.
func publicUsers(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		out, err := next(ctx, request)
		if err != nil {
			return nil, err
		}
		users, _ := out.([]*db.User)
		public := make([]*db.User, 0, len(users))
		for _, u := range users {
			public = append(public, u.Public())
		}
		return public, nil
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return def
	}
}
