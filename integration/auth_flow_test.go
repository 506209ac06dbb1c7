package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFlow_SignupLoginReset(t *testing.T) {
	ts := NewTestServer(t)
	name := UniqueName("Alice")
	email := ts.Signup(t, name, "pass1234")

	// login by email, then by username
	tok := ts.Login(t, email, "pass1234")
	assert.NotEmpty(t, tok)
	body := Expect(t, ts.PostJSON(t, "/login", map[string]string{"email": name, "password": "pass1234"}, ""), http.StatusOK)
	assert.Equal(t, name, body["username"])

	body = Expect(t, ts.PostJSON(t, "/login", map[string]string{"email": email, "password": "wrong"}, ""), http.StatusUnauthorized)
	assert.Equal(t, "Invalid credentials", body["message"])
	assert.Equal(t, "INVALID_CREDENTIALS", body["code"])

	body = Expect(t, ts.PostJSON(t, "/reset-password", map[string]string{"email": email, "newPassword": "newpass99"}, ""), http.StatusOK)
	assert.Equal(t, "Password reset successfully", body["message"])
	Expect(t, ts.PostJSON(t, "/login", map[string]string{"email": email, "password": "pass1234"}, ""), http.StatusUnauthorized)
	ts.Login(t, email, "newpass99")
}

func TestAuthFlow_SignupErrors(t *testing.T) {
	ts := NewTestServer(t)
	name := UniqueName("bob")
	email := ts.Signup(t, name, "pass1234")

	body := Expect(t, ts.PostJSON(t, "/signup", map[string]string{
		"username": UniqueName("other"), "email": strings.ToUpper(email), "password": "x",
	}, ""), http.StatusConflict)
	assert.Equal(t, "Email already registered", body["message"])

	body = Expect(t, ts.PostJSON(t, "/signup", map[string]string{
		"username": strings.ToUpper(name), "email": UniqueName("x") + "@example.com", "password": "x",
	}, ""), http.StatusConflict)
	assert.Equal(t, "Username already taken", body["message"])
	assert.Equal(t, "DUPLICATE_ACCOUNT", body["code"])

	body = Expect(t, ts.PostJSON(t, "/signup", map[string]string{"username": "carol"}, ""), http.StatusBadRequest)
	assert.Equal(t, "Missing fields", body["message"])
	assert.ElementsMatch(t, []interface{}{"email", "password"}, body["fields"])

	body = Expect(t, ts.Do(t, http.MethodPost, "/signup", nil), http.StatusBadRequest)
	assert.Equal(t, "Missing fields", body["message"])

	body = Expect(t, ts.PostJSON(t, "/reset-password", map[string]string{"email": "nobody@example.com", "newPassword": "x"}, ""), http.StatusNotFound)
	assert.Equal(t, "User not found", body["message"])
}

func TestAuthFlow_UsersListing(t *testing.T) {
	ts := NewTestServer(t)
	a := UniqueName("u")
	b := UniqueName("u")
	ts.Signup(t, a, "pass1234")
	ts.Signup(t, b, "pass1234")

	resp := ts.Get(t, "/users", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var names []string
	ReadJSON(t, resp, &names)
	assert.Equal(t, []string{a, b}, names)
}

func TestAuthFlow_LogoutAndRefresh(t *testing.T) {
	ts := NewTestServer(t)
	_, tok := ts.Register(t, "dave")

	body := Expect(t, ts.PostJSON(t, "/refresh", nil, tok), http.StatusOK)
	fresh := body["token"].(string)
	require.NotEmpty(t, fresh)

	// the refreshed-away token no longer works
	Expect(t, ts.Get(t, "/friends", tok), http.StatusUnauthorized)
	Expect(t, ts.Get(t, "/friends", fresh), http.StatusOK)

	Expect(t, ts.PostJSON(t, "/logout", nil, fresh), http.StatusOK)
	Expect(t, ts.Get(t, "/friends", fresh), http.StatusUnauthorized)
	Expect(t, ts.PostJSON(t, "/logout", nil, ""), http.StatusUnauthorized)
}
