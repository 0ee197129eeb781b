package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPagedFollowsLinkHeaders(t *testing.T) {
	const pages = 3
	const perPage = 100

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))

		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &page)
		}

		users := make([]User, perPage)
		for i := range users {
			id := int64((page-1)*perPage + i + 1)
			users[i] = User{ID: id, Name: fmt.Sprintf("user %d", id)}
		}

		if page < pages {
			next := fmt.Sprintf("<http://%s/api/v1/courses/42/users?page=%d&per_page=100>", r.Host, page+1)
			w.Header().Set("Link", next+`; rel="next", <http://x/last>; rel="last"`)
		}
		json.NewEncoder(w).Encode(users)
	}))
	defer srv.Close()

	client := New(srv.URL, "sekret", time.Second)
	users, err := client.ListUsers(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, "Bearer sekret", gotAuth)
	require.Len(t, users, pages*perPage)
	for i, u := range users {
		assert.Equal(t, int64(i+1), u.ID)
	}
}

func TestNextLink(t *testing.T) {
	header := `<https://canvas.test/api/v1/courses?page=2>; rel="next", <https://canvas.test/api/v1/courses?page=1>; rel="first"`
	assert.Equal(t, "https://canvas.test/api/v1/courses?page=2", nextLink(header))

	assert.Equal(t, "", nextLink(`<https://canvas.test/api/v1/courses?page=1>; rel="first"`))
	assert.Equal(t, "", nextLink(""))
}

func TestGetCourseAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errors":[{"message":"The specified resource does not exist."}]}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "sekret", time.Second)
	_, err := client.GetCourse(context.Background(), 9999)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "does not exist")
}

func TestTransportErrorOnDeadServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := New(srv.URL, "sekret", time.Second)
	_, err := client.ListCourses(context.Background())
	require.Error(t, err)

	var tErr *TransportError
	assert.True(t, errors.As(err, &tErr))
}

func TestReplaceGroupMembers(t *testing.T) {
	var gotMethod string
	var gotMembers []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		require.NoError(t, r.ParseForm())
		gotMembers = r.PostForm["members[]"]
		fmt.Fprint(w, `{"id": 7}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "sekret", time.Second)
	err := client.ReplaceGroupMembers(context.Background(), 7, []int64{101, 102, 103})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, []string{"101", "102", "103"}, gotMembers)
}

func TestReplaceGroupMembersEmptyRoster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Empty(t, r.PostForm["members[]"])
		fmt.Fprint(w, `{"id": 7}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "sekret", time.Second)
	require.NoError(t, client.ReplaceGroupMembers(context.Background(), 7, nil))
}

func TestURLEncoding(t *testing.T) {
	client := New("https://canvas.test/", "x", time.Second)
	params := url.Values{}
	params.Set("per_page", "50")
	assert.Equal(t, "https://canvas.test/api/v1/courses/1/users?per_page=50", client.url("/courses/1/users", params))
	assert.Equal(t, "https://canvas.test/api/v1/courses", client.url("/courses", nil))
}
