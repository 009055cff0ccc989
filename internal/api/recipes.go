package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"larder/internal/models"
	"larder/internal/photo"
)

// ListRecipes returns every recipe of the caller
func (s *Server) ListRecipes(c *gin.Context) {
	recipes, err := s.workspace(c).Recipes.FetchAll(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipes)
}

// GetRecipe returns a single recipe
func (s *Server) GetRecipe(c *gin.Context) {
	recipe, err := s.workspace(c).Recipes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// CreateRecipe stores a new recipe; any id in the body is ignored
func (s *Server) CreateRecipe(c *gin.Context) {
	var recipe models.Recipe
	if err := c.ShouldBindJSON(&recipe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recipe.ID = ""
	if recipe.Ingredients == nil {
		recipe.Ingredients = []models.IngredientSummary{}
	}

	if _, err := s.workspace(c).Recipes.Upsert(c.Request.Context(), &recipe); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, recipe)
}

// UpdateRecipe overwrites every attribute of a stored recipe
func (s *Server) UpdateRecipe(c *gin.Context) {
	var recipe models.Recipe
	if err := c.ShouldBindJSON(&recipe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recipe.ID = c.Param("id")
	if recipe.Ingredients == nil {
		recipe.Ingredients = []models.IngredientSummary{}
	}

	if _, err := s.workspace(c).Recipes.Upsert(c.Request.Context(), &recipe); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// DeleteRecipe removes a recipe and its photo
func (s *Server) DeleteRecipe(c *gin.Context) {
	repo := s.workspace(c).Recipes
	recipe, err := repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := repo.Remove(c.Request.Context(), recipe); err != nil {
		abortWithError(c, err)
		return
	}
	if recipe.Photo != "" && s.photos != nil {
		if err := s.photos.Delete(c.Request.Context(), recipe.Photo); err != nil {
			s.logger.Printf("Failed to delete photo %s: %v", recipe.Photo, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Recipe deleted successfully"})
}

// UploadPhoto stores the request body as the recipe photo and records its
// key on the recipe
func (s *Server) UploadPhoto(c *gin.Context) {
	if s.photos == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "photo storage not configured"})
		return
	}
	ctx := c.Request.Context()
	repo := s.workspace(c).Recipes
	recipe, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	contentType := c.ContentType()
	key, err := photo.Key(currentUser(c), recipe.ID, contentType)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := s.photos.Put(ctx, key, c.Request.Body, contentType); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	previous := recipe.Photo
	recipe.Photo = key
	if _, err := repo.Upsert(ctx, recipe); err != nil {
		abortWithError(c, err)
		return
	}
	if previous != "" && previous != key {
		if err := s.photos.Delete(ctx, previous); err != nil {
			s.logger.Printf("Failed to delete photo %s: %v", previous, err)
		}
	}
	c.JSON(http.StatusOK, recipe)
}
