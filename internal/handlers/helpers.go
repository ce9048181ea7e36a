package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	jwtutil "github.com/schoolhub/social-api/pkg/jwt"
	"github.com/schoolhub/social-api/pkg/logger"
	"github.com/schoolhub/social-api/pkg/middleware"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// callerClaims fetches the authenticated caller's claims or writes a 401.
func callerClaims(w http.ResponseWriter, r *http.Request) *jwtutil.Claims {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		logger.Log.Warn("Unauthorized request")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil
	}
	return claims
}

// pathObjectID parses the named mux path variable as an ObjectID, writing a
// 400 on failure.
func pathObjectID(w http.ResponseWriter, r *http.Request, name string) (primitive.ObjectID, bool) {
	hex := mux.Vars(r)[name]
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		logger.Log.Warnf("Invalid %s %q: %v", name, hex, err)
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return primitive.NilObjectID, false
	}
	return id, true
}
