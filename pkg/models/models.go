package models

import (
	"time"

	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Credential is the stored OAuth credential for one identity.
type Credential struct {
	gorm.Model
	Identity     string    `gorm:"uniqueIndex;not null"`
	AccessToken  string    `gorm:"not null"`
	RefreshToken string
	TokenType    string
	Expiry       time.Time `gorm:"not null"`
}

func NewCredential(identity string, token *oauth2.Token) Credential {
	return Credential{
		Identity:     identity,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}
}

func (c Credential) Token() *oauth2.Token {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    tokenType,
		Expiry:       c.Expiry,
	}
}
