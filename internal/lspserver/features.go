package lspserver

import (
	"context"
	"encoding/json"
	"fmt"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

func (s *Server) codeLens(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.CodeLensParams
	if err := decode(req, &params); err != nil {
		return reply(ctx, nil, err)
	}
	lenses, err := s.engine.CodeLenses(ctx, uri.URI(params.TextDocument.URI))
	if err != nil {
		s.logger.Debug("No code lenses", "uri", params.TextDocument.URI, "error", err.Error())
	}
	if lenses == nil {
		lenses = []protocol.CodeLens{}
	}
	return reply(ctx, lenses, nil)
}

func (s *Server) references(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.ReferenceParams
	if err := decode(req, &params); err != nil {
		return reply(ctx, nil, err)
	}
	locs, err := s.engine.References(ctx, uri.URI(params.TextDocument.URI), params.Position)
	if err != nil {
		s.logger.Debug("No references", "uri", params.TextDocument.URI, "error", err.Error())
	}
	if locs == nil {
		locs = []protocol.Location{}
	}
	return reply(ctx, locs, nil)
}

// showDocumentParams is the window/showDocument request body.
type showDocumentParams struct {
	URI       protocol.DocumentURI `json:"uri"`
	External  bool                 `json:"external,omitempty"`
	TakeFocus bool                 `json:"takeFocus,omitempty"`
	Selection *protocol.Range      `json:"selection,omitempty"`
}

type showDocumentResult struct {
	Success bool `json:"success"`
}

func (s *Server) executeCommand(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params struct {
		Command   string            `json:"command"`
		Arguments []json.RawMessage `json:"arguments"`
	}
	if err := decode(req, &params); err != nil {
		return reply(ctx, nil, err)
	}
	args := make([]string, 0, len(params.Arguments))
	for _, raw := range params.Arguments {
		var a string
		if err := json.Unmarshal(raw, &a); err != nil {
			return reply(ctx, nil, jsonrpc2.Errorf(jsonrpc2.InvalidParams, "%s: arguments must be strings", params.Command))
		}
		args = append(args, a)
	}

	switch params.Command {
	case CommandOpenOverride:
		if len(args) != 2 {
			return reply(ctx, nil, jsonrpc2.Errorf(jsonrpc2.InvalidParams,
				"%s expects [className, memberName], got %d arguments", CommandOpenOverride, len(args)))
		}
		loc, err := s.engine.OverrideTarget(ctx, args[0], args[1])
		if err != nil {
			s.logger.Warn("Opening origin class at document start", "class", args[0], "error", err.Error())
		}
		if err := reply(ctx, loc, nil); err != nil {
			return err
		}
		return s.showDocument(ctx, loc)

	case CommandInvalidateCache:
		if len(args) == 0 {
			return reply(ctx, s.engine.InvalidateAll("command"), nil)
		}
		n := 0
		for _, className := range args {
			if s.engine.Invalidate(className, "command") {
				n++
			}
		}
		return reply(ctx, n, nil)
	}
	return reply(ctx, nil, jsonrpc2.Errorf(jsonrpc2.InvalidParams, "unknown command %q", params.Command))
}

// showDocument asks the client to reveal loc.
func (s *Server) showDocument(ctx context.Context, loc protocol.Location) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no client connection")
	}
	sel := loc.Range
	var result showDocumentResult
	_, err := conn.Call(ctx, methodShowDocument, showDocumentParams{
		URI:       loc.URI,
		TakeFocus: true,
		Selection: &sel,
	}, &result)
	if err != nil {
		s.logger.Warn("window/showDocument failed", "uri", loc.URI, "error", err.Error())
		return nil
	}
	if !result.Success {
		s.logger.Debug("Client declined to show document", "uri", loc.URI)
	}
	return nil
}
