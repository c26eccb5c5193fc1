package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/internal/store/model"
)

const (
	runnerTokenIssuer = "task-planner"
	// runner tokens outlive any reasonable job by a wide margin; the
	// signing key is deleted once the runner reports a terminal state
	runnerTokenExpiration = 24 * time.Hour
)

// GenerateRunnerJWTAndKey mints a fresh signing key and a job-scoped token
// for the runner of the given job. The token is handed to the container
// through its launch configuration and is the runner's only credential.
func GenerateRunnerJWTAndKey(job *model.Job) (*model.Key, string, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate runner private key: %w", err)
	}

	key := &model.Key{
		ID:         uuid.NewString(),
		JobID:      job.ID.String(),
		PrivateKey: privateKey,
	}

	token, err := GenerateRunnerJWT(key, job)
	if err != nil {
		return nil, "", err
	}

	return key, token, nil
}

func GenerateRunnerJWT(signingKey *model.Key, job *model.Job) (string, error) {
	type runnerToken struct {
		JobID string `json:"job_id"`
		jwt.RegisteredClaims
	}

	claims := runnerToken{
		job.ID.String(),
		jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(runnerTokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    runnerTokenIssuer,
			Subject:   job.TenantID,
			Audience:  []string{runnerTokenIssuer},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = signingKey.ID
	signedToken, err := token.SignedString(signingKey.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign runner token: %w", err)
	}

	return signedToken, nil
}

// RunnerAuthenticator authenticates executors on the runner-facing
// listener. The kid in the token header points at the signing key minted
// for exactly one job, so a runner can never report on another job.
type RunnerAuthenticator struct {
	store store.Store
}

func NewRunnerAuthenticator(store store.Store) *RunnerAuthenticator {
	return &RunnerAuthenticator{store: store}
}

func (ra *RunnerAuthenticator) Authenticate(token string) (RunnerClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(runnerTokenIssuer),
	)
	t, err := parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid not found")
		}

		publicKey, err := ra.store.Key().GetPublicKey(context.Background(), kid)
		if err != nil {
			return nil, fmt.Errorf("public key not found with id %s: %w", kid, err)
		}

		rsaPublicKey, ok := publicKey.(rsa.PublicKey)
		if !ok {
			return nil, errors.New("unexpected public key type")
		}
		return &rsaPublicKey, nil
	})
	if err != nil {
		zap.S().Named("auth").Debugw("failed to parse or verify runner token", "error", err)
		return RunnerClaims{}, fmt.Errorf("failed to authenticate token: %w", err)
	}

	if !t.Valid {
		return RunnerClaims{}, errors.New("failed to parse or validate token")
	}

	return ra.parseToken(t)
}

func (ra *RunnerAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := r.Header.Get("Authorization")
		if accessToken == "" || len(accessToken) < len("Bearer ") {
			http.Error(w, "No token provided", http.StatusUnauthorized)
			return
		}

		accessToken = accessToken[len("Bearer "):]
		claims, err := ra.Authenticate(accessToken)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		ctx := NewRunnerContext(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (ra *RunnerAuthenticator) parseToken(token *jwt.Token) (RunnerClaims, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return RunnerClaims{}, errors.New("failed to parse jwt token claims")
	}

	jobID, ok := claims["job_id"].(string)
	if !ok || jobID == "" {
		return RunnerClaims{}, errors.New("token has no job id")
	}

	tenantID, _ := claims["sub"].(string)
	issuer, _ := claims["iss"].(string)

	return RunnerClaims{
		JobID:    jobID,
		TenantID: tenantID,
		Issuer:   issuer,
	}, nil
}
