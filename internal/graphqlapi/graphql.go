// Package graphqlapi exposes a read-only GraphQL view over persisted
// sessions, their files and transcripts, and sync jobs.
package graphqlapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/oremus-labs/lockin/internal/session"
	"github.com/oremus-labs/lockin/internal/store"
)

// Config wires the GraphQL schema.
type Config struct {
	Store *store.Store
}

// NewHandler returns an http.Handler that serves /graphql requests.
func NewHandler(cfg Config) (http.Handler, error) {
	schema, err := NewSchema(cfg)
	if err != nil {
		return nil, err
	}
	return handler.New(&handler.Config{
		Schema:   schema,
		Pretty:   true,
		GraphiQL: true,
	}), nil
}

// NewSchema builds the schema without an HTTP handler around it.
func NewSchema(cfg Config) (*graphql.Schema, error) {
	return schemaBuilder{cfg: cfg}.buildSchema()
}

type schemaBuilder struct {
	cfg Config
}

func (b schemaBuilder) buildSchema() (*graphql.Schema, error) {
	jsonScalar := graphql.NewScalar(graphql.ScalarConfig{
		Name: "JSON",
		Serialize: func(value interface{}) interface{} {
			return value
		},
	})

	fileType := graphql.NewObject(graphql.ObjectConfig{
		Name: "File",
		Fields: graphql.Fields{
			"path":      {Type: graphql.NewNonNull(graphql.String)},
			"content":   {Type: graphql.String},
			"isCode":    {Type: graphql.Boolean},
			"updatedAt": {Type: graphql.String},
		},
	})

	messageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Message",
		Fields: graphql.Fields{
			"id":        {Type: graphql.NewNonNull(graphql.ID)},
			"sender":    {Type: graphql.NewNonNull(graphql.String)},
			"kind":      {Type: graphql.String},
			"text":      {Type: graphql.String},
			"isError":   {Type: graphql.Boolean},
			"timestamp": {Type: graphql.String},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"id":         {Type: graphql.NewNonNull(graphql.ID)},
			"prompt":     {Type: graphql.String},
			"state":      {Type: graphql.NewNonNull(graphql.String)},
			"techStack":  {Type: graphql.String},
			"previewUrl": {Type: graphql.String},
			"selected":   {Type: graphql.String},
			"error":      {Type: graphql.String},
			"archiveUri": {Type: graphql.String},
			"fileCount":  {Type: graphql.Int},
			"createdAt":  {Type: graphql.String},
			"updatedAt":  {Type: graphql.String},
			"files": {
				Type: graphql.NewList(fileType),
				Args: graphql.FieldConfigArgument{
					"codeOnly": {Type: graphql.Boolean},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := sourceID(p)
					if b.cfg.Store == nil || id == "" {
						return []interface{}{}, nil
					}
					files, err := b.cfg.Store.ListFiles(id)
					if err != nil {
						return nil, err
					}
					codeOnly, _ := p.Args["codeOnly"].(bool)
					return mapFiles(files, codeOnly), nil
				},
			},
			"messages": {
				Type: graphql.NewList(messageType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := sourceID(p)
					if b.cfg.Store == nil || id == "" {
						return []interface{}{}, nil
					}
					msgs, err := b.cfg.Store.ListMessages(id)
					if err != nil {
						return nil, err
					}
					return mapMessages(msgs), nil
				},
			},
		},
	})

	jobType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Job",
		Fields: graphql.Fields{
			"id":          {Type: graphql.NewNonNull(graphql.ID)},
			"type":        {Type: graphql.NewNonNull(graphql.String)},
			"status":      {Type: graphql.NewNonNull(graphql.String)},
			"stage":       {Type: graphql.String},
			"progress":    {Type: graphql.Int},
			"message":     {Type: graphql.String},
			"payload":     {Type: jsonScalar},
			"result":      {Type: jsonScalar},
			"error":       {Type: graphql.String},
			"attempt":     {Type: graphql.Int},
			"maxAttempts": {Type: graphql.Int},
			"createdAt":   {Type: graphql.String},
			"updatedAt":   {Type: graphql.String},
		},
	})

	historyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HistoryEntry",
		Fields: graphql.Fields{
			"id":        {Type: graphql.NewNonNull(graphql.ID)},
			"event":     {Type: graphql.NewNonNull(graphql.String)},
			"sessionId": {Type: graphql.String},
			"metadata":  {Type: jsonScalar},
			"createdAt": {Type: graphql.String},
		},
	})

	queryFields := graphql.Fields{
		"sessions": {
			Type: graphql.NewList(sessionType),
			Args: graphql.FieldConfigArgument{
				"limit": {Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Store == nil {
					return []interface{}{}, nil
				}
				sessions, err := b.cfg.Store.ListSessions(limitArg(p, 25))
				if err != nil {
					return nil, err
				}
				out := make([]interface{}, 0, len(sessions))
				for i := range sessions {
					out = append(out, mapSession(&sessions[i]))
				}
				return out, nil
			},
		},
		"session": {
			Type: sessionType,
			Args: graphql.FieldConfigArgument{
				"id": {Type: graphql.NewNonNull(graphql.ID)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Store == nil {
					return nil, nil
				}
				id, _ := p.Args["id"].(string)
				sess, err := b.cfg.Store.GetSession(id)
				if errors.Is(err, store.ErrNotFound) {
					return nil, nil
				}
				if err != nil {
					return nil, err
				}
				return mapSession(sess), nil
			},
		},
		"jobs": {
			Type: graphql.NewList(jobType),
			Args: graphql.FieldConfigArgument{
				"limit": {Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Store == nil {
					return []interface{}{}, nil
				}
				jobs, err := b.cfg.Store.ListJobs(limitArg(p, 25))
				if err != nil {
					return nil, err
				}
				return mapJobs(jobs), nil
			},
		},
		"job": {
			Type: jobType,
			Args: graphql.FieldConfigArgument{
				"id": {Type: graphql.NewNonNull(graphql.ID)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Store == nil {
					return nil, nil
				}
				id, _ := p.Args["id"].(string)
				job, err := b.cfg.Store.GetJob(id)
				if err != nil {
					return nil, err
				}
				return mapJob(job), nil
			},
		},
		"history": {
			Type: graphql.NewList(historyType),
			Args: graphql.FieldConfigArgument{
				"limit": {Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Store == nil {
					return []interface{}{}, nil
				}
				entries, err := b.cfg.Store.ListHistory(limitArg(p, 50))
				if err != nil {
					return nil, err
				}
				out := make([]interface{}, 0, len(entries))
				for _, e := range entries {
					out = append(out, map[string]interface{}{
						"id":        e.ID,
						"event":     e.Event,
						"sessionId": e.SessionID,
						"metadata":  e.Metadata,
						"createdAt": e.CreatedAt.Format(time.RFC3339),
					})
				}
				return out, nil
			},
		},
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

func limitArg(p graphql.ResolveParams, def int) int {
	if l, ok := p.Args["limit"].(int); ok && l > 0 {
		return l
	}
	return def
}

func sourceID(p graphql.ResolveParams) string {
	src, ok := p.Source.(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := src["id"].(string)
	return id
}

func mapSession(sess *store.Session) map[string]interface{} {
	if sess == nil {
		return nil
	}
	return map[string]interface{}{
		"id":         sess.ID,
		"prompt":     sess.Prompt,
		"state":      string(sess.State),
		"techStack":  sess.TechStack,
		"previewUrl": sess.PreviewURL,
		"selected":   sess.Selected,
		"error":      sess.Error,
		"archiveUri": sess.ArchiveURI,
		"fileCount":  sess.FileCount,
		"createdAt":  sess.CreatedAt.Format(time.RFC3339),
		"updatedAt":  sess.UpdatedAt.Format(time.RFC3339),
	}
}

func mapFiles(files []store.File, codeOnly bool) []interface{} {
	out := make([]interface{}, 0, len(files))
	for _, f := range files {
		isCode := session.IsCodeFile(f.Path)
		if codeOnly && !isCode {
			continue
		}
		out = append(out, map[string]interface{}{
			"path":      f.Path,
			"content":   f.Content,
			"isCode":    isCode,
			"updatedAt": f.UpdatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func mapMessages(msgs []session.Message) []interface{} {
	out := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]interface{}{
			"id":        m.ID,
			"sender":    string(m.Sender),
			"kind":      m.Kind,
			"text":      m.Text,
			"isError":   m.IsError,
			"timestamp": m.Timestamp.Format(time.RFC3339),
		})
	}
	return out
}

func mapJobs(jobs []store.Job) []interface{} {
	out := make([]interface{}, 0, len(jobs))
	for i := range jobs {
		out = append(out, mapJob(&jobs[i]))
	}
	return out
}

func mapJob(job *store.Job) map[string]interface{} {
	if job == nil {
		return nil
	}
	return map[string]interface{}{
		"id":          job.ID,
		"type":        job.Type,
		"status":      string(job.Status),
		"stage":       job.Stage,
		"progress":    job.Progress,
		"message":     job.Message,
		"payload":     job.Payload,
		"result":      job.Result,
		"error":       job.Error,
		"attempt":     job.Attempt,
		"maxAttempts": job.MaxAttempts,
		"createdAt":   job.CreatedAt.Format(time.RFC3339),
		"updatedAt":   job.UpdatedAt.Format(time.RFC3339),
	}
}

// EncodeGraphQLQuery is a helper for GraphQL testing (form-encoded JSON bodies).
func EncodeGraphQLQuery(query string) string {
	query = strings.TrimSpace(query)
	data, _ := json.Marshal(map[string]string{"query": query})
	return string(data)
}
