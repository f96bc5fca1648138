// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Othala tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/othala/internal/blockstore"
	"github.com/starford/othala/internal/docstore"
	"github.com/starford/othala/internal/history"
)

// Server wraps the MCP server with Othala tools.
type Server struct {
	mcp    *server.MCPServer
	blocks *blockstore.Store
	docs   *docstore.Store
}

// New creates a new MCP server with all Othala tools registered.
func New(blocks *blockstore.Store, docs *docstore.Store) *Server {
	s := &Server{blocks: blocks, docs: docs}

	s.mcp = server.NewMCPServer(
		"Othala",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("create_block",
		mcp.WithDescription("Create a new block holding literal content. Blocks are "+
			"immutable; to change one later, use edit_block. Read the operation rules "+
			"first via the get_block_algebra tool or the othala://block-algebra resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Text the block should hold")),
	), s.createBlock)

	s.mcp.AddTool(mcp.NewTool("edit_block",
		mcp.WithDescription("Derive a new version of a block in the same family. "+
			"The old block stays untouched; the result is a fresh uncomputed block."),
		mcp.WithString("block_id", mcp.Required(), mcp.Description("Block to edit (kbb_...)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Replacement text")),
	), s.editBlock)

	s.mcp.AddTool(mcp.NewTool("sum_blocks",
		mcp.WithDescription("Derive a sum block over two or more blocks. The merge is "+
			"deferred: call compute_block on the result to produce merged content."),
		mcp.WithString("block_ids", mcp.Required(), mcp.Description("Comma-separated block ids, at least two")),
	), s.sumBlocks)

	s.mcp.AddTool(mcp.NewTool("subtract_blocks",
		mcp.WithDescription("Derive a subtract block removing the subtrahend's facts "+
			"from the minuend. Deferred like sum; compute the result to materialize it."),
		mcp.WithString("minuend_id", mcp.Required(), mcp.Description("Block to subtract from")),
		mcp.WithString("subtrahend_id", mcp.Required(), mcp.Description("Block whose content is removed")),
	), s.subtractBlocks)

	s.mcp.AddTool(mcp.NewTool("compute_block",
		mcp.WithDescription("Finalize a block. Leaf blocks are stamped as-is; derived "+
			"blocks get merged content from their parents. Computing twice fails."),
		mcp.WithString("block_id", mcp.Required(), mcp.Description("Block to compute")),
		mcp.WithString("message", mcp.Description("Optional note stored on the block")),
	), s.computeBlock)

	s.mcp.AddTool(mcp.NewTool("recompute_block",
		mcp.WithDescription("Replay a computed block's lineage against the latest "+
			"computed version of every source family. Returns a new block in the same family."),
		mcp.WithString("block_id", mcp.Required(), mcp.Description("Computed block to replay")),
	), s.recomputeBlock)

	s.mcp.AddTool(mcp.NewTool("block_history",
		mcp.WithDescription("Show every version in a block's family, oldest first."),
		mcp.WithString("block_id", mcp.Required(), mcp.Description("Any block of the family")),
	), s.blockHistory)

	s.mcp.AddTool(mcp.NewTool("block_provenance",
		mcp.WithDescription("Render a block's full ancestry tree, parents indented beneath it."),
		mcp.WithString("block_id", mcp.Required(), mcp.Description("Block whose lineage to render")),
	), s.blockProvenance)

	s.mcp.AddTool(mcp.NewTool("create_document",
		mcp.WithDescription("Create a document referencing existing blocks, in order."),
		mcp.WithString("block_ids", mcp.Description("Optional comma-separated block ids")),
	), s.createDocument)

	s.mcp.AddTool(mcp.NewTool("document_add",
		mcp.WithDescription("Add a block to a document. With smart=true, blocks already "+
			"in the document that overlap the newcomer are folded into one merged block."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Target document (kbd_...)")),
		mcp.WithString("block_id", mcp.Required(), mcp.Description("Block to add")),
		mcp.WithBoolean("smart", mcp.Description("Fold semantically overlapping blocks")),
	), s.documentAdd)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Render a document: header plus one line per referenced block."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document to read")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("document_log",
		mcp.WithDescription("Return a document's append-only operation log as JSON."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document whose log to read")),
	), s.documentLog)

	s.mcp.AddTool(mcp.NewTool("get_block_algebra",
		mcp.WithDescription("Returns the canonical block algebra contract. "+
			"Call this before deriving or computing blocks to understand the operation rules."),
	), s.getBlockAlgebra)

	// Resource: block algebra contract.
	s.mcp.AddResource(
		mcp.NewResource("othala://block-algebra", "Block Algebra Contract",
			mcp.WithResourceDescription("Canonical operation rules for blocks and documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readBlockAlgebraResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) createBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.blocks.Create(content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) editBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := req.RequireString("block_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.blocks.Edit(blockID, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) sumBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("block_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.blocks.Sum(splitIDs(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) subtractBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minuendID, err := req.RequireString("minuend_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	subtrahendID, err := req.RequireString("subtrahend_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.blocks.Subtract(minuendID, subtrahendID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) computeBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := req.RequireString("block_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	message := req.GetString("message", "")
	b, err := s.blocks.Compute(ctx, blockID, message)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) recomputeBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := req.RequireString("block_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.blocks.Recompute(ctx, blockID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) blockHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := req.RequireString("block_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.blocks.Get(blockID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	blocks, err := s.blocks.FamilyHistory(b.FamilyID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(history.Timeline(blocks)), nil
}

func (s *Server) blockProvenance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := req.RequireString("block_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	root, err := s.blocks.Provenance(blockID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(history.Tree(root)), nil
}

func (s *Server) createDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var ids []string
	if raw := req.GetString("block_ids", ""); raw != "" {
		ids = splitIDs(raw)
	}
	d, err := s.docs.New(ids)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) documentAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	blockID, err := req.RequireString("block_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	smart := req.GetBool("smart", false)

	var d any
	if smart {
		d, err = s.docs.SmartAdd(ctx, docID, blockID)
	} else {
		d, err = s.docs.Add(docID, blockID)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.docs.Get(docID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	blocks, err := s.docs.Resolve(docID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(history.Document(d, blocks)), nil
}

func (s *Server) documentLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.docs.Log(docID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entries)
}

func (s *Server) getBlockAlgebra(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BlockAlgebraContract), nil
}

func (s *Server) readBlockAlgebraResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "othala://block-algebra",
			MIMEType: "text/markdown",
			Text:     BlockAlgebraContract,
		},
	}, nil
}

// splitIDs parses a comma-separated id list, dropping blanks.
func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
