package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// swaggerJSON is a minimal Swagger 2.0 document describing the SQL console API.
// It is served at /swagger/doc.json.
const swaggerJSON = `{
  "swagger": "2.0",
  "info": {
    "title": "sqlexec SQL console",
    "version": "1.0.0",
    "description": "Runs statements through a dedicated executor per request."
  },
  "basePath": "/",
  "schemes": ["http"],
  "definitions": {
    "Statement": {
      "type": "object",
      "required": ["sql"],
      "properties": {
        "sql": {"type": "string", "description": "Statement text, or procedure name when procedure is set"},
        "args": {"type": "array", "items": {}},
        "procedure": {"type": "boolean"},
        "timeout": {"type": "string", "description": "Overrides the default command timeout, e.g. 5s"},
        "normalize": {"type": "boolean", "description": "Trim string values (query only)"}
      }
    }
  },
  "paths": {
    "/health": {
      "get": {
        "summary": "Health check (runs SELECT 1)",
        "produces": ["application/json"],
        "responses": {
          "200": {"description": "OK"},
          "503": {"description": "Database unavailable"}
        }
      }
    },
    "/api/v1/execute": {
      "post": {
        "summary": "Execute a statement and return the rows affected",
        "consumes": ["application/json"],
        "parameters": [
          {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Statement"}}
        ],
        "responses": {
          "200": {"description": "OK"},
          "400": {"description": "Statement rejected"}
        }
      }
    },
    "/api/v1/query": {
      "post": {
        "summary": "Run a query and return its rows",
        "consumes": ["application/json"],
        "parameters": [
          {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Statement"}}
        ],
        "responses": {
          "200": {"description": "OK"},
          "400": {"description": "Statement rejected"}
        }
      }
    },
    "/api/v1/query-multiple": {
      "post": {
        "summary": "Run a batch and return every result set",
        "consumes": ["application/json"],
        "parameters": [
          {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Statement"}}
        ],
        "responses": {
          "200": {"description": "OK"},
          "400": {"description": "Statement rejected"}
        }
      }
    }
  }
}`

// swaggerHTML renders Swagger UI from a CDN and loads our /swagger/doc.json.
const swaggerHTML = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>sqlexec API Docs</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
    <script>
      window.addEventListener('load', function() {
        const ui = SwaggerUIBundle({
          url: '/swagger/doc.json',
          dom_id: '#swagger-ui'
        });
        window.ui = ui;
      });
    </script>
  </body>
</html>`

func serveSwaggerUI(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, swaggerHTML)
}
