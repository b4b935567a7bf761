package users_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-authkit-session/internal/utils"
	"github.com/jrsteele09/go-authkit-session/users"
	"github.com/stretchr/testify/require"
)

func TestUser_DisplayName(t *testing.T) {
	tests := []struct {
		name string
		user users.User
		want string
	}{
		{"full name", users.User{Email: "a@b.c", FirstName: utils.Ptr("Ada"), LastName: utils.Ptr("Lovelace")}, "Ada Lovelace"},
		{"first only", users.User{Email: "a@b.c", FirstName: utils.Ptr("Ada")}, "Ada"},
		{"email fallback", users.User{Email: "a@b.c"}, "a@b.c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.user.DisplayName())
		})
	}
}

func TestUser_NullableFieldsSerializeAsNull(t *testing.T) {
	b, err := json.Marshal(users.User{ID: "user_1", Email: "a@b.c"})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"user_1","email":"a@b.c","firstName":null,"lastName":null,"profilePictureUrl":null}`, string(b))
}

func TestUser_CloneDoesNotAlias(t *testing.T) {
	u := &users.User{ID: "user_1", FirstName: utils.Ptr("Ada")}
	c := u.Clone()
	*c.FirstName = "Grace"
	require.Equal(t, "Ada", *u.FirstName)

	var nilUser *users.User
	require.Nil(t, nilUser.Clone())
}
