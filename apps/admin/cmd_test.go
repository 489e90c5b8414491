package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"

	"github.com/trezcool/shule/core/user"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

func setup(t *testing.T, pwd string) *commandLine {
	t.Helper()

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = nil })

	return &commandLine{
		usrRepo: inmemdb.NewUserRepository(inmemdb.NewDB()),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t, "")

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version", "fix": // pass
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t, "LeP@ss10rd")

	if err := cli.run([]string{"admin", "adduser", "-username", "awe", "-email", "awe@test.cd", "-admin"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(context.Background(), "awe")
	if err != nil {
		t.Fatalf("GetUserByUsernameOrEmail() failed: %v", err)
	}
	if !usr.IsActive {
		t.Error("expected user to be active")
	}
	if !usr.IsAdmin() {
		t.Error("expected user to have admin roles")
	}
	if err = usr.CheckPassword("LeP@ss10rd"); err != nil {
		t.Errorf("CheckPassword() failed: %v", err)
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t, "NewP@ss10rd")

	usr := user.User{Username: "awe", Email: "awe@test.cd", IsActive: true}
	if err := usr.SetPassword("OldP@ss10rd"); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	if _, err := cli.usrRepo.CreateUser(context.Background(), usr); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "unknown user", args: []string{"resetpassword", "-username", "lol"}, wantErr: user.ErrNotFound},
		{name: "known user", args: []string{"resetpassword", "-username", "awe"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("cli.run() unexpected error = %v", err)
			}
		})
	}

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(context.Background(), "awe")
	if err != nil {
		t.Fatalf("GetUserByUsernameOrEmail() failed: %v", err)
	}
	if err = usr.CheckPassword("NewP@ss10rd"); err != nil {
		t.Errorf("CheckPassword() failed: %v", err)
	}
}
