package main

// @title           CompanyChat API
// @version         1.0
// @description     API de chat com o assistente financeiro, com respostas transmitidas via Server-Sent Events

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Cabeçalho de autenticação JWT usando o esquema Bearer. Exemplo: "Bearer {token}"
