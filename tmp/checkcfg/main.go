package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"formline/internal/config"
	"formline/internal/db"
	"formline/internal/engine"
	"formline/internal/migrate"
	"formline/internal/server"
)

func main() {
	workspace := "/tmp/formline-check1"
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		panic(err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		panic(err)
	}
	e := engine.New(conn, config.Default())
	jwtSecret := "test-secret"
	h, err := server.New(server.Config{Engine: e, BasePath: "/v0", Auth: server.AuthConfig{JWTSecret: jwtSecret}})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()
	token := signToken(jwtSecret, "tester", time.Now().Add(time.Hour))

	schema := map[string]any{
		"id":   "smoke",
		"name": "Smoke check",
		"sections": []map[string]any{
			{"id": "s1", "title": "One", "items": []map[string]any{
				{"id": "state", "type": "single_select", "label": "State", "optionsKey": "condition"},
			}},
		},
	}
	post := func(path string, body map[string]any) {
		b, _ := json.Marshal(body)
		req, _ := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			panic(err)
		}
		defer res.Body.Close()
		var resp any
		_ = json.NewDecoder(res.Body).Decode(&resp)
		fmt.Printf("%s status=%d resp=%v\n", path, res.StatusCode, resp)
	}
	post("/v0/templates", map[string]any{"schema": schema})
	post("/v0/inspections", map[string]any{"template_id": "smoke"})
}

func signToken(secret, actorID string, expiresAt time.Time) string {
	// minimal copy of server_test helper
	claims := map[string]any{
		"sub": actorID,
		"exp": expiresAt.Unix(),
		"nbf": time.Now().Unix(),
		"iat": time.Now().Unix(),
	}
	header := map[string]any{"alg": "HS256", "typ": "JWT"}
	enc := func(v any) string {
		b, _ := json.Marshal(v)
		return base64RawURLEncode(b)
	}
	sig := hmacSHA256(enc(header)+"."+enc(claims), secret)
	return enc(header) + "." + enc(claims) + "." + sig
}

func base64RawURLEncode(b []byte) string {
	const enc = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	out := make([]byte, 0, (len(b)*4+2)/3)
	var val uint
	var valb int
	for _, c := range b {
		val = (val << 8) | uint(c)
		valb += 8
		for valb >= 6 {
			out = append(out, enc[(val>>(valb-6))&0x3f])
			valb -= 6
		}
	}
	if valb > -6 {
		out = append(out, enc[((val<<8)>>(valb+8))&0x3f])
	}
	return string(out)
}

func hmacSHA256(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(data))
	return base64RawURLEncode(h.Sum(nil))
}
