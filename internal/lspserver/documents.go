package lspserver

import (
	"context"

	"clslens/internal/document"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

func (s *Server) didOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := decode(req, &params); err != nil {
		s.logger.Warn("Bad didOpen", "error", err.Error())
		return reply(ctx, nil, nil)
	}
	item := params.TextDocument
	doc := document.New(uri.URI(item.URI), string(item.LanguageID), int32(item.Version), item.Text)
	s.engine.Store().Open(doc)
	s.logger.Debug("Opened document", "uri", doc.URI, "languageId", doc.LanguageID)
	return reply(ctx, nil, nil)
}

func (s *Server) didChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	// decoded locally so that a change without a range stays distinguishable
	// from an insert at 0:0
	var params struct {
		TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
		ContentChanges []document.Change                        `json:"contentChanges"`
	}
	if err := decode(req, &params); err != nil {
		s.logger.Warn("Bad didChange", "error", err.Error())
		return reply(ctx, nil, nil)
	}
	u := uri.URI(params.TextDocument.URI)
	if _, err := s.engine.Store().Update(u, int32(params.TextDocument.Version), params.ContentChanges); err != nil {
		s.logger.Warn("Failed to apply changes", "uri", u, "error", err.Error())
	}
	return reply(ctx, nil, nil)
}

func (s *Server) didSave(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidSaveTextDocumentParams
	if err := decode(req, &params); err != nil {
		return reply(ctx, nil, nil)
	}
	if !s.opts.InvalidateOnSave {
		return reply(ctx, nil, nil)
	}
	doc, err := s.engine.Document(uri.URI(params.TextDocument.URI))
	if err != nil {
		s.logger.Debug("Saved document not readable", "uri", params.TextDocument.URI, "error", err.Error())
		return reply(ctx, nil, nil)
	}
	s.engine.InvalidateDocument(doc, "save")
	return reply(ctx, nil, nil)
}

func (s *Server) didClose(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if err := decode(req, &params); err != nil {
		return reply(ctx, nil, nil)
	}
	s.engine.CloseDocument(ctx, uri.URI(params.TextDocument.URI))
	return reply(ctx, nil, nil)
}
