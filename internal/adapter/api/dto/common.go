package dto

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrorResponse é o corpo JSON de todas as respostas de erro da API
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewErrorResponse cria uma nova resposta de erro
func NewErrorResponse(code int, message, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// PageQuery recebe a paginação pela query string. Valores ausentes ou
// fora do intervalo são ajustados por Normalize.
type PageQuery struct {
	Page     int `form:"page" binding:"omitempty,min=0"`
	PageSize int `form:"page_size" binding:"omitempty,min=0"`
}

// Normalize aplica a página 1 e o tamanho padrão, limitando o tamanho a
// maxPageSize
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize < 1:
		q.PageSize = defaultPageSize
	case q.PageSize > maxPageSize:
		q.PageSize = maxPageSize
	}
	return q
}

// Limit e Offset traduzem a página para a consulta ao repositório
func (q PageQuery) Limit() int { return q.PageSize }

func (q PageQuery) Offset() int { return (q.Page - 1) * q.PageSize }
