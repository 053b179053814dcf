package model

import "time"

type ProfileType string

const (
	ProfileTypeCliente    ProfileType = "cliente"
	ProfileTypeFreelancer ProfileType = "freelancer"
)

// Profile mirrors the profiles row of the hosted data service.
// Field names on the wire follow the service schema (Portuguese).
type Profile struct {
	ID              string      `json:"id"`
	Email           string      `json:"email"`
	Nome            string      `json:"nome"`
	Telefone        string      `json:"telefone,omitempty"`
	FotoURL         string      `json:"foto_url,omitempty"`
	Cidade          string      `json:"cidade"`
	Tipo            ProfileType `json:"tipo"`
	Descricao       string      `json:"descricao,omitempty"`
	PrecoMinimo     float64     `json:"preco_minimo,omitempty"`
	PrecoMaximo     float64     `json:"preco_maximo,omitempty"`
	Disponivel      bool        `json:"disponivel"`
	AvaliacaoMedia  float64     `json:"avaliacao_media"`
	TotalAvaliacoes int         `json:"total_avaliacoes"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Category is a service category from the freelancer directory.
type Category struct {
	ID        string    `json:"id"`
	Nome      string    `json:"nome"`
	Descricao string    `json:"descricao,omitempty"`
	Icone     string    `json:"icone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is a single offering published by a freelancer.
type Service struct {
	ID           string    `json:"id"`
	FreelancerID string    `json:"freelancer_id"`
	CategoryID   string    `json:"category_id,omitempty"`
	Nome         string    `json:"nome"`
	Descricao    string    `json:"descricao,omitempty"`
	Preco        float64   `json:"preco,omitempty"`
	Ativo        bool      `json:"ativo"`
	CreatedAt    time.Time `json:"created_at"`
}
