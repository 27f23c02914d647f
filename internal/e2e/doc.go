// Package e2e holds black-box tests that run the API server and its
// dependencies with docker compose. Run them with -tags integration.
package e2e
