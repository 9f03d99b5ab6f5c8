package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/stretchr/testify/require"

	"github.com/insoln/slack-mm2/db"
)

// SetupDB starts a throwaway PostgreSQL container, connects sqlx and applies
// the schema. The container is terminated when the test finishes. Tests
// using it must be skipped under -short.
func SetupDB(t *testing.T) *sqlx.DB {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, connStr, tearDown, err := CreatePostgresContainer(ctx, "")
	require.NoError(t, err, "failed to create postgres container")
	t.Cleanup(func() {
		if err := tearDown(context.Background()); err != nil {
			t.Logf("Error terminating postgres container: %v", err)
		}
	})

	conn, err := sqlx.Connect("postgres", connStr)
	require.NoError(t, err, "failed to connect to postgres")
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.Migrate(conn), "failed to apply schema")
	return conn
}

// TestHelper provides a full environment for end-to-end tests: PostgreSQL
// with the entity schema applied plus a real Mattermost server with a
// bootstrapped admin.
type TestHelper struct {
	t         *testing.T
	tearDowns []TearDownFunc

	SiteURL string
	Client  *model.Client4
	DB      *sqlx.DB

	AdminUser     *model.User
	AdminPassword string
	AdminToken    string
}

// SetupHelper initializes PostgreSQL and Mattermost containers for
// end-to-end exporter tests.
func SetupHelper(t *testing.T) *TestHelper {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	th := &TestHelper{
		t:             t,
		tearDowns:     make([]TearDownFunc, 0),
		AdminPassword: "testpassword123",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dockerNet, networkTearDown, err := CreateTestNetwork(ctx)
	require.NoError(t, err, "failed to create docker network")
	th.tearDowns = append(th.tearDowns, networkTearDown)

	_, postgresConnStr, postgresTearDown, err := CreatePostgresContainer(ctx, dockerNet.Name)
	require.NoError(t, err, "failed to create postgres container")
	th.tearDowns = append(th.tearDowns, postgresTearDown)

	_, siteURL, mattermostTearDown, err := CreateMattermostContainer(ctx, dockerNet.Name)
	require.NoError(t, err, "failed to create mattermost container")
	th.tearDowns = append(th.tearDowns, mattermostTearDown)
	th.SiteURL = siteURL
	t.Logf("Mattermost started at: %s", siteURL)

	conn, err := sqlx.Connect("postgres", postgresConnStr)
	require.NoError(t, err, "failed to connect to postgres")
	th.tearDowns = append(th.tearDowns, func(context.Context) error { return conn.Close() })
	require.NoError(t, db.Migrate(conn), "failed to apply schema")
	th.DB = conn

	th.Client = model.NewAPIv4Client(siteURL)
	th.setupAdminUser()

	return th
}

// setupAdminUser creates the initial admin user and logs in
func (th *TestHelper) setupAdminUser() {
	adminUser := &model.User{
		Email:    "admin@test.local",
		Username: "admin",
		Password: th.AdminPassword,
	}

	createdUser, _, err := th.Client.CreateUser(context.Background(), adminUser)
	require.NoError(th.t, err, "failed to create admin user")
	th.AdminUser = createdUser

	_, _, err = th.Client.Login(context.Background(), adminUser.Email, th.AdminPassword)
	require.NoError(th.t, err, "failed to login as admin user")

	_, err = th.Client.UpdateUserRoles(context.Background(), createdUser.Id, "system_admin system_user")
	require.NoError(th.t, err, "failed to make user system admin")

	// Re-login to get a token that carries admin permissions.
	_, _, err = th.Client.Login(context.Background(), adminUser.Email, th.AdminPassword)
	require.NoError(th.t, err, "failed to re-login as admin user")
	th.AdminToken = th.Client.AuthToken
}

// TearDown cleans up all containers
func (th *TestHelper) TearDown() {
	ctx := context.Background()
	// Tear down in reverse order
	for i := len(th.tearDowns) - 1; i >= 0; i-- {
		if err := th.tearDowns[i](ctx); err != nil {
			th.t.Logf("Error during teardown: %v", err)
		}
	}
}

// CreateUser creates a user in Mattermost and returns the created user
func (th *TestHelper) CreateUser(username, email string) *model.User {
	user := &model.User{
		Email:    email,
		Username: username,
		Password: "testpassword123",
	}

	createdUser, _, err := th.Client.CreateUser(context.Background(), user)
	require.NoError(th.t, err, "failed to create user %s", username)

	return createdUser
}

// CreateTeam creates an open team and returns it
func (th *TestHelper) CreateTeam(name, displayName string) *model.Team {
	team := &model.Team{
		Name:        name,
		DisplayName: displayName,
		Type:        model.TeamOpen,
	}

	createdTeam, _, err := th.Client.CreateTeam(context.Background(), team)
	require.NoError(th.t, err, "failed to create team %s", name)

	return createdTeam
}

// GetUserByUsername fetches a user by username
func (th *TestHelper) GetUserByUsername(username string) (*model.User, error) {
	user, _, err := th.Client.GetUserByUsername(context.Background(), username, "")
	return user, err
}

// GetUserByEmail fetches a user by email
func (th *TestHelper) GetUserByEmail(email string) (*model.User, error) {
	user, _, err := th.Client.GetUserByEmail(context.Background(), email, "")
	return user, err
}
