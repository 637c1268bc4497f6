package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	control := s.echo.Group("/_controller")
	control.GET("/status", s.controllerStatus)
	control.POST("/clients", s.openClient)
	control.DELETE("/clients/:id", s.closeClient)

	protected := control.Group("")
	protected.Use(s.middleware.Control.RequireControlToken())
	protected.POST("/message", s.postMessage)
	protected.GET("/namespaces", s.listNamespaces)

	s.echo.Any("/*", s.intercept)
}
