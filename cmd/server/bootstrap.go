package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository"
	"github.com/iliyamo/dac-governance/internal/utils"
	"github.com/iliyamo/dac-governance/internal/utils/logger"
)

// bootstrapAdmin creates the account named by ADMIN_EMAIL and
// ADMIN_PASSWORD with the Admin role when no user has that email yet.
// Every other role is granted through the API by an admin.
func bootstrapAdmin(ctx context.Context, st repository.UserStore, cost int, log *logger.Logger) error {
	email := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}
	if _, _, err := st.GetUserCredentials(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	u := model.User{
		Email:       email,
		DisplayName: "Administrator",
		Roles:       []model.UserRole{model.NewUserRole(model.RoleAdmin, nil)},
	}
	if err := st.CreateUser(ctx, &u, hash); err != nil {
		return err
	}
	log.Success("created admin %s (id %d)", email, u.ID)
	return nil
}
